package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"btcpay-bridge/internal/payment"
	"btcpay-bridge/internal/probe"

	"github.com/spf13/cobra"
)

var errCheckFailed = errors.New("check failed")

type app struct {
	payments payment.Repository
	gateway  payment.Gateway
	urls     *payment.URLBuilder
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "btcpayctl",
		Short:         "Inspect and test configured BTCPay gateway instances",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(a.listCmd())
	rootCmd.AddCommand(a.checkConfigCmd())
	rootCmd.AddCommand(a.testInvoiceCmd())
	rootCmd.AddCommand(a.connectionCmd())

	return rootCmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List BTCPay gateway instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := a.payments.ListByMethod(cmd.Context(), payment.MethodBTCPay)
			if err != nil {
				return fmt.Errorf("list instances: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(instances) == 0 {
				fmt.Fprintln(out, "no BTCPay instances configured")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tENABLED\tSTORE\tWEBHOOK SECRET\tUUID")
			for _, inst := range instances {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					inst.ID, inst.Name, yesNo(inst.Enabled),
					valueOrDash(inst.Config.StoreID), yesNo(inst.Config.HasWebhookSecret()), inst.UUID)
			}
			return w.Flush()
		},
	}
}

func (a *app) checkConfigCmd() *cobra.Command {
	var paymentID int64

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate an instance's config and reach its store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.instance(cmd.Context(), paymentID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checking %s (#%d)\n", inst.Name, inst.ID)
			rep := probe.New(a.gateway).CheckConfig(cmd.Context(), inst.Config)
			return printReport(out, rep)
		},
	}

	cmd.Flags().Int64Var(&paymentID, "payment-id", 0, "payment instance id")
	_ = cmd.MarkFlagRequired("payment-id")
	return cmd
}

func (a *app) testInvoiceCmd() *cobra.Command {
	var paymentID int64

	cmd := &cobra.Command{
		Use:   "test-invoice",
		Short: "Create a small real invoice to verify the full create path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.instance(cmd.Context(), paymentID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			notifyURL := a.urls.NotifyURL(*inst)
			fmt.Fprintf(out, "Creating test invoice on %s (#%d)\n", inst.Name, inst.ID)
			fmt.Fprintf(out, "Notify URL: %s\n", notifyURL)

			rep := probe.New(a.gateway).CheckInvoice(cmd.Context(), inst.Config, notifyURL, a.urls.ReturnURL("test"))
			if rep.CheckoutURL != "" {
				fmt.Fprintf(out, "Checkout URL: %s\n", rep.CheckoutURL)
			}
			return printReport(out, rep)
		},
	}

	cmd.Flags().Int64Var(&paymentID, "payment-id", 0, "payment instance id")
	_ = cmd.MarkFlagRequired("payment-id")
	return cmd
}

func (a *app) connectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connection <payment_id>",
		Short: "Print the webhook URL to register in BTCPay Server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid payment id %q", args[0])
			}
			inst, err := a.instance(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Instance:     %s (#%d)\n", inst.Name, inst.ID)
			fmt.Fprintf(out, "Enabled:      %s\n", yesNo(inst.Enabled))
			fmt.Fprintf(out, "Store ID:     %s\n", valueOrDash(inst.Config.StoreID))
			fmt.Fprintf(out, "Webhook URL:  %s\n", a.urls.NotifyURL(*inst))
			if inst.NotifyDomain != "" {
				fmt.Fprintf(out, "Notify domain: %s\n", inst.NotifyDomain)
			}
			if !inst.Config.HasWebhookSecret() {
				fmt.Fprintf(out, "WARNING: %s is empty, webhook signatures will not be verified\n", payment.KeyWebhookKey)
			}
			return nil
		},
	}
}

// instance loads a BTCPay instance by id, rejecting other methods.
func (a *app) instance(ctx context.Context, id int64) (*payment.Instance, error) {
	if id <= 0 {
		return nil, fmt.Errorf("payment id must be positive")
	}
	inst, err := a.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("payment #%d: %w", id, err)
	}
	if !strings.EqualFold(inst.Method, payment.MethodBTCPay) {
		return nil, fmt.Errorf("payment #%d uses %s, not %s", id, inst.Method, payment.MethodBTCPay)
	}
	return inst, nil
}

func printReport(out io.Writer, rep probe.Report) error {
	for _, s := range rep.Steps {
		mark := "OK  "
		if !s.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(out, "  [%s] %-16s %s\n", mark, s.Name, s.Detail)
	}
	for _, w := range rep.Warnings {
		fmt.Fprintf(out, "  [WARN] %s\n", w)
	}
	if !rep.OK() {
		return errCheckFailed
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
