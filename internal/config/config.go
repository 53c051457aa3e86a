package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const envPrefix = "CLOUDOMATE"

// Config is the typed view of the loaded configuration.
type Config struct {
	ElectrumCommand []string
	Testnet         bool
	WalletPath      string

	FeeAPIURL       string
	FeeTier         string
	RateAPIURL      string
	FallbackRateURL string
	GatewayFee      decimal.Decimal
	RequestTimeout  time.Duration

	LedgerDBPath string
	LogFile      string
	LogLevel     string

	APIPort       int
	AllowedOrigin string
	JWTSecret     string

	VerifyBroadcast bool
	ElectrumServer  string
	ElectrumSSL     bool

	TriblerURL string
}

// LoadConfig loads config.json from dir into the global viper instance,
// creating it with defaults when it does not exist. A .env file in dir, if
// present, is loaded into the environment first so CLOUDOMATE_* variables
// can override file values.
func LoadConfig(dir string) error {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(dir)
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(dir)
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// Load is LoadConfig followed by Current.
func Load(dir string) (Config, error) {
	if err := LoadConfig(dir); err != nil {
		return Config{}, err
	}
	return Current()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("electrum_command", []string{})
	viper.SetDefault("testnet", false)
	viper.SetDefault("wallet_path", "")

	viper.SetDefault("fee_api_url", "https://mempool.space/api/v1/fees/recommended")
	viper.SetDefault("fee_tier", "halfHourFee")
	viper.SetDefault("rate_api_url", "https://api.coindesk.com/v1/bpi/currentprice/%s.json")
	viper.SetDefault("fallback_rate_url", "https://blockchain.info/tobtc?currency=%s&value=1")
	viper.SetDefault("gateway_fee", "0.0001") // in BTC
	viper.SetDefault("request_timeout", "0s") // 0 = no deadline

	viper.SetDefault("ledger_db_path", "./payments.db")
	viper.SetDefault("log_file", "./logs/wallet.log")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("api_port", 9003)
	viper.SetDefault("allowed_origin", "http://localhost:3000")
	viper.SetDefault("jwt_secret", "")

	viper.SetDefault("verify_broadcast", false)
	viper.SetDefault("electrum_server", "electrum.blockstream.info:50002")
	viper.SetDefault("electrum_ssl", true)

	viper.SetDefault("tribler_url", "http://localhost:8085")
}

// createDefaultConfig writes a new configuration file with the defaults
func createDefaultConfig(dir string) error {
	path := filepath.Join(dir, "config.json")
	if err := viper.SafeWriteConfigAs(path); err != nil {
		var exists viper.ConfigFileAlreadyExistsError
		if !errors.As(err, &exists) {
			return fmt.Errorf("error creating config file: %w", err)
		}
		if err := viper.WriteConfigAs(path); err != nil {
			return fmt.Errorf("error writing config file: %w", err)
		}
	}
	viper.SetConfigFile(path)
	return nil
}

// Current builds a Config from the global viper state.
func Current() (Config, error) {
	gatewayFee, err := decimal.NewFromString(viper.GetString("gateway_fee"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid gateway_fee %q: %w", viper.GetString("gateway_fee"), err)
	}
	if gatewayFee.IsNegative() {
		return Config{}, fmt.Errorf("gateway_fee must not be negative")
	}

	return Config{
		ElectrumCommand: viper.GetStringSlice("electrum_command"),
		Testnet:         viper.GetBool("testnet"),
		WalletPath:      viper.GetString("wallet_path"),

		FeeAPIURL:       viper.GetString("fee_api_url"),
		FeeTier:         viper.GetString("fee_tier"),
		RateAPIURL:      viper.GetString("rate_api_url"),
		FallbackRateURL: viper.GetString("fallback_rate_url"),
		GatewayFee:      gatewayFee,
		RequestTimeout:  viper.GetDuration("request_timeout"),

		LedgerDBPath: viper.GetString("ledger_db_path"),
		LogFile:      viper.GetString("log_file"),
		LogLevel:     viper.GetString("log_level"),

		APIPort:       viper.GetInt("api_port"),
		AllowedOrigin: viper.GetString("allowed_origin"),
		JWTSecret:     viper.GetString("jwt_secret"),

		VerifyBroadcast: viper.GetBool("verify_broadcast"),
		ElectrumServer:  viper.GetString("electrum_server"),
		ElectrumSSL:     viper.GetBool("electrum_ssl"),

		TriblerURL: viper.GetString("tribler_url"),
	}, nil
}
