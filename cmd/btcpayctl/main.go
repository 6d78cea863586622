package main

import (
	"fmt"
	"os"

	"btcpay-bridge/internal/config"
	"btcpay-bridge/internal/db"
	"btcpay-bridge/internal/logger"
	"btcpay-bridge/internal/payment"
)

var Version = "dev"

func main() {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database, err := db.NewDatabase(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer database.Close()

	a := &app{
		payments: payment.NewRepository(database),
		gateway:  payment.NewBTCPayGateway(),
		urls:     payment.NewURLBuilder(cfg.AppURL),
	}

	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		database.Close()
		os.Exit(1)
	}
}
