package db

import (
	"context"
	"testing"

	"btcpay-bridge/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("NotConfigured", func(t *testing.T) {
		rdb, err := NewRedisClient(context.Background(), &config.Config{})
		assert.NoError(t, err)
		assert.Nil(t, rdb)
	})

	t.Run("Unreachable", func(t *testing.T) {
		rdb, err := NewRedisClient(context.Background(), &config.Config{RedisAddr: "127.0.0.1:1"})
		assert.Error(t, err)
		assert.Nil(t, rdb)
		assert.Contains(t, err.Error(), "failed to ping redis")
	})
}
