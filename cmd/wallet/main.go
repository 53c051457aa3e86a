package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vwigmore/cloudomate/internal/config"
	"github.com/vwigmore/cloudomate/internal/logger"
)

// cli carries state shared by all commands of one invocation.
type cli struct {
	dir string
	app *app
}

func newRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cloudomate-wallet",
		Short: "Pay for services from an Electrum wallet",
		Long: `Drives a local Electrum daemon to check balances, estimate fees and
pay invoices. Results are printed as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.dir, "dir", ".", "directory holding config.json and .env")

	rootCmd.AddCommand(c.balanceCmd())
	rootCmd.AddCommand(c.addressesCmd())
	rootCmd.AddCommand(c.feeCmd())
	rootCmd.AddCommand(c.rateCmd())
	rootCmd.AddCommand(c.convertCmd())
	rootCmd.AddCommand(c.payCmd())
	rootCmd.AddCommand(c.invoiceCmd())
	rootCmd.AddCommand(c.emptyCmd())
	rootCmd.AddCommand(c.historyCmd())
	rootCmd.AddCommand(c.serveCmd())
	rootCmd.AddCommand(c.tokenCmd())

	return rootCmd
}

func (c *cli) initConfig() error {
	cfg, err := config.Load(c.dir)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	if err := initLogging(cfg.LogFile, cfg.LogLevel); err != nil {
		return err
	}
	log.Debugf("Using configuration %s", viper.ConfigFileUsed())

	c.app = newApp(cfg)
	return nil
}

// run executes the command line args, writing results to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{}
	rootCmd := newRootCmd(c)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)

	defer func() {
		if c.app != nil {
			c.app.Close()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		logger.Error(err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		logger.Cleanup()
		os.Exit(1)
	}
	logger.Cleanup()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
