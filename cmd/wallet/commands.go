package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vwigmore/cloudomate/internal/api"
	"github.com/vwigmore/cloudomate/internal/daemon"
	walletstatedb "github.com/vwigmore/cloudomate/internal/database"
	"github.com/vwigmore/cloudomate/internal/payment"
	"github.com/vwigmore/cloudomate/lib/fees"
	"github.com/vwigmore/cloudomate/lib/rates"
)

// copyToClipboard is replaced in tests.
var copyToClipboard = clipboard.WriteAll

type balanceOutput struct {
	Confirmed   string `json:"confirmed"`
	Unconfirmed string `json:"unconfirmed"`
	Total       string `json:"total"`
	Currency    string `json:"currency,omitempty"`
	Value       string `json:"value,omitempty"`
}

type feeOutput struct {
	Tier     string         `json:"tier"`
	Fee      string         `json:"fee"`
	Satoshis btcutil.Amount `json:"satoshis"`
	TxSize   int            `json:"tx_size"`
}

type rateOutput struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
	Price    string `json:"price"`
}

type convertOutput struct {
	Price     string         `json:"price"`
	Currency  string         `json:"currency"`
	Coins     string         `json:"coins"`
	Satoshis  btcutil.Amount `json:"satoshis"`
	To        string         `json:"to,omitempty"`
	Converted string         `json:"converted,omitempty"`
}

func (c *cli) balanceCmd() *cobra.Command {
	var currency string

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.app.context(cmd.Context())
			defer cancel()

			var balance daemon.Balance
			err := c.app.withSession(ctx, func(s *daemon.Session) error {
				var err error
				balance, err = s.GetBalance(ctx)
				return err
			})
			if err != nil {
				return err
			}

			out := balanceOutput{
				Confirmed:   daemon.FormatAmount(balance.Confirmed),
				Unconfirmed: daemon.FormatAmount(balance.Unconfirmed),
				Total:       daemon.FormatAmount(balance.Total()),
			}
			if currency != "" {
				out.Currency = strings.ToUpper(currency)
				rate, err := c.app.rates.Rate(ctx, out.Currency)
				if err != nil {
					return err
				}
				value, err := rates.FiatValue(balance.Total(), rate)
				if err != nil {
					return err
				}
				out.Value = value.StringFixed(2)
			}

			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "", "also show the total in this fiat currency")
	return cmd
}

func (c *cli) addressesCmd() *cobra.Command {
	var copyFirst bool

	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "List the wallet addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.app.context(cmd.Context())
			defer cancel()

			var addresses []interface{}
			err := c.app.withSession(ctx, func(s *daemon.Session) error {
				var err error
				addresses, err = s.GetAddresses(ctx)
				return err
			})
			if err != nil {
				return err
			}

			if copyFirst && len(addresses) > 0 {
				first := fmt.Sprint(addresses[0])
				if err := copyToClipboard(first); err != nil {
					log.Warnf("Failed to copy address to clipboard: %v", err)
				} else {
					log.Infof("Copied %s to clipboard", first)
				}
			}

			return printJSON(cmd.OutOrStdout(), addresses)
		},
	}

	cmd.Flags().BoolVar(&copyFirst, "copy", false, "copy the first address to the clipboard")
	return cmd
}

func (c *cli) feeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fee [tier]",
		Short: "Estimate the network fee of an average transaction",
		Long: `Estimate the network fee of an average transaction. Tiers are
fastestFee, halfHourFee, hourFee, economyFee and minimumFee.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.app.context(cmd.Context())
			defer cancel()

			tier := c.app.cfg.FeeTier
			if len(args) > 0 {
				tier = args[0]
			}

			fee, err := c.app.fees.EstimateNetworkFee(ctx, tier)
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), feeOutput{
				Tier:     tier,
				Fee:      daemon.FormatAmount(fee),
				Satoshis: fee,
				TxSize:   fees.AvgTxSize,
			})
		},
	}
}

func (c *cli) rateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <currency>...",
		Short: "Show exchange rates of one or more currencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.app.context(cmd.Context())
			defer cancel()

			found, err := c.app.rates.Rates(ctx, args)
			if err != nil {
				return err
			}

			out := make([]rateOutput, 0, len(args))
			for _, arg := range args {
				currency := strings.ToUpper(arg)
				rate := found[currency]
				out = append(out, rateOutput{
					Currency: currency,
					Rate:     rate.String(),
					Price:    decimal.NewFromInt(1).Div(rate).Round(2).String(),
				})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func (c *cli) convertCmd() *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "convert <price> [currency]",
		Short: "Convert a fiat price to coins",
		Long: `Convert a fiat price to coins. The currency is read from the price
("$4.99", "3,50 EUR") unless given explicitly.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.app.context(cmd.Context())
			defer cancel()

			price, currency, err := parsePriceArgs(args[0], args[1:])
			if err != nil {
				return err
			}
			if currency == "" {
				return fmt.Errorf("cannot tell the currency of %q", args[0])
			}

			coins, err := c.app.rates.Convert(ctx, price, currency)
			if err != nil {
				return err
			}

			out := convertOutput{
				Price:    price.String(),
				Currency: currency,
				Coins:    coins.String(),
				Satoshis: rates.ToAmount(*coins),
			}
			if to != "" {
				out.To = strings.ToUpper(to)
				converted, err := c.app.rates.ConvertFiat(ctx, price, currency, out.To)
				if err != nil {
					return err
				}
				out.Converted = converted.StringFixed(2)
			}

			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "also convert the price to this fiat currency")
	return cmd
}

func (c *cli) payCmd() *cobra.Command {
	var (
		feeText    string
		autoFee    bool
		useTribler bool
	)

	cmd := &cobra.Command{
		Use:   "pay <address> <amount>",
		Short: "Pay an amount of coins to an address",
		Long: `Pay an amount of coins to an address. Without --fee or --auto-fee
the daemon chooses the fee and the funds check only covers the amount.
With --tribler the payment goes through the wallet of a running Tribler
instance, which is sent the amount plus the fee.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if err := payment.ValidateAddress(address, c.app.params); err != nil {
				return err
			}
			if autoFee && feeText != "" {
				return errors.New("--fee and --auto-fee are mutually exclusive")
			}
			if autoFee && useTribler {
				return errors.New("--auto-fee is not supported with --tribler")
			}

			amount, err := parseCoinsArg(args[1])
			if err != nil {
				return err
			}
			var fee *btcutil.Amount
			if feeText != "" {
				d, err := decimal.NewFromString(feeText)
				if err != nil {
					return fmt.Errorf("invalid fee %q", feeText)
				}
				f, err := payment.ParseFee(d)
				if err != nil {
					return fmt.Errorf("fee: %w", err)
				}
				fee = &f
			}

			if useTribler {
				return c.settle(cmd, func(svc *payment.Service) (*payment.Outcome, error) {
					return svc.PayTransfer(cmd.Context(), c.app.tribler, address, amount, fee)
				})
			}

			return c.pay(cmd, func(svc *payment.Service, s *daemon.Session) (*payment.Outcome, error) {
				if autoFee {
					return svc.PayWithAutoFee(cmd.Context(), s, address, amount)
				}
				return svc.Pay(cmd.Context(), s, address, amount, fee)
			})
		},
	}

	cmd.Flags().StringVar(&feeText, "fee", "", "absolute fee in coins")
	cmd.Flags().BoolVar(&autoFee, "auto-fee", false, "add the estimated network fee and the gateway fee")
	cmd.Flags().BoolVar(&useTribler, "tribler", false, "pay from the Tribler wallet instead of Electrum")
	return cmd
}

func (c *cli) invoiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoice <address> <price> [currency]",
		Short: "Pay a fiat or coin price to an address",
		Long: `Pay a price to an address, converting it to coins first when it is
in a fiat currency. The estimated network fee and the gateway fee are added.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if err := payment.ValidateAddress(address, c.app.params); err != nil {
				return err
			}

			price, currency, err := parsePriceArgs(args[1], args[2:])
			if err != nil {
				return err
			}

			return c.pay(cmd, func(svc *payment.Service, s *daemon.Session) (*payment.Outcome, error) {
				return svc.PayInvoice(cmd.Context(), s, payment.Invoice{
					Address:  address,
					Price:    price,
					Currency: currency,
				})
			})
		},
	}
}

func (c *cli) emptyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "empty <address>",
		Short: "Send the whole balance to an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if err := payment.ValidateAddress(address, c.app.params); err != nil {
				return err
			}

			return c.pay(cmd, func(svc *payment.Service, s *daemon.Session) (*payment.Outcome, error) {
				return svc.EmptyWallet(cmd.Context(), s, address)
			})
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded payments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := c.app.openLedger()
			if err != nil {
				return err
			}

			payments, err := ledger.ListPayments(limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), payments)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of payments to show, 0 for all")
	return cmd
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the wallet API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.app.cfg
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret must be set to serve the API")
			}

			svc, err := c.app.paymentService(cmd.Context())
			if err != nil {
				return err
			}

			srv := api.NewServer(api.Config{
				Runner:        c.app.runner,
				Options:       c.app.options,
				Payments:      svc,
				Fees:          c.app.fees,
				History:       c.app.ledger,
				Params:        c.app.params,
				FeeTier:       cfg.FeeTier,
				AllowedOrigin: cfg.AllowedOrigin,
				JWTSecret:     []byte(cfg.JWTSecret),
			})
			return srv.Run(cmd.Context(), fmt.Sprintf(":%d", cfg.APIPort))
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue an API token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := "admin"
			if len(args) > 0 {
				subject = args[0]
			}

			token, err := api.IssueToken([]byte(c.app.cfg.JWTSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	return cmd
}

// pay runs fn in a wallet session and prints its outcome.
func (c *cli) pay(cmd *cobra.Command, fn func(*payment.Service, *daemon.Session) (*payment.Outcome, error)) error {
	return c.settle(cmd, func(svc *payment.Service) (*payment.Outcome, error) {
		var out *payment.Outcome
		err := c.app.withSession(cmd.Context(), func(s *daemon.Session) error {
			var err error
			out, err = fn(svc, s)
			return err
		})
		if err == nil {
			c.rememberWallet()
		}
		return out, err
	})
}

func (c *cli) rememberWallet() {
	path := c.app.options.WalletPath
	if path == "" || c.app.ledger == nil {
		return
	}
	if err := c.app.ledger.SetMetadata(walletstatedb.LastWalletKey, path); err != nil {
		log.Warnf("Failed to remember wallet path: %v", err)
	}
}

// settle runs a payment and prints its outcome. Payments that were not
// broadcast are reported as errors after the outcome is printed.
func (c *cli) settle(cmd *cobra.Command, fn func(*payment.Service) (*payment.Outcome, error)) error {
	ctx, cancel := c.app.context(cmd.Context())
	defer cancel()
	cmd.SetContext(ctx)

	svc, err := c.app.paymentService(ctx)
	if err != nil {
		return err
	}

	out, err := fn(svc)
	if out != nil {
		if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}

	switch out.Status {
	case payment.StatusInsufficientFunds:
		return fmt.Errorf("insufficient funds: have %v, need %v", out.Available, out.Required)
	case payment.StatusRejected:
		return fmt.Errorf("transaction rejected: %s", out.Transaction.Message)
	}
	return nil
}

// parseCoinsArg parses a coin amount given on the command line.
func parseCoinsArg(text string) (btcutil.Amount, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", text)
	}
	return payment.ParseCoins(d)
}

// parsePriceArgs reads a price and its currency, preferring an explicit
// currency argument over one detected in the price text.
func parsePriceArgs(text string, rest []string) (decimal.Decimal, string, error) {
	price, currency, err := rates.ParsePrice(text)
	if err != nil {
		return decimal.Zero, "", err
	}
	if len(rest) > 0 {
		currency = strings.ToUpper(rest[0])
	}
	return price, currency, nil
}
