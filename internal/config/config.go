package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"spreadScope/internal/model"
)

// ErrInvalid marks a missing or malformed configuration value.
var ErrInvalid = errors.New("invalid configuration")

const (
	StoreAuto     = "auto"
	StorePostgres = "postgres"
	StoreJsonl    = "jsonl"
	StoreNone     = "none"

	// AutoDecimals means token decimals are read from the ERC20 contract.
	AutoDecimals = -1

	maxVenueNameLen = 50
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL         string
	DexARouter     string
	DexBRouter     string
	DexAName       string
	DexBName       string
	TokenA         string
	TokenB         string
	TokenADecimals int
	TokenBDecimals int
	MinProfit      decimal.Decimal
	TradeAmount    decimal.Decimal
	GasCost        decimal.Decimal
	Direction      string
	PGDSN          string
	Store          string
	OutDir         string
	MetricsFile    string
	MaxRetries     int
	RetryBackoff   time.Duration
	Timeout        time.Duration
	LogLevel       string

	// missing lists required keys that no source set.
	missing []string
}

// Load merges config file, environment variables, and flags into Config.
// A .env file in the working directory is loaded first when present.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SPREADSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("pg-dsn", "SPREADSCOPE_PG_DSN", "DATABASE_URL"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	v.SetDefault("dex-a-name", "DEX_A")
	v.SetDefault("dex-b-name", "DEX_B")
	v.SetDefault("token-a-decimals", AutoDecimals)
	v.SetDefault("token-b-decimals", AutoDecimals)
	v.SetDefault("direction", "a-to-b")
	v.SetDefault("store", StoreAuto)
	v.SetDefault("out-dir", "./data")
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var missing []string
	minProfit, ok, err := getDecimal(v, "min-profit", "min_profit_usdc")
	if err != nil {
		return Config{}, err
	}
	if !ok {
		missing = append(missing, "min-profit")
	}
	tradeAmount, _, err := getDecimal(v, "trade-amount", "trade_amount")
	if err != nil {
		return Config{}, err
	}
	gasCost, ok, err := getDecimal(v, "gas-cost", "gas_cost_usdc")
	if err != nil {
		return Config{}, err
	}
	if !ok {
		missing = append(missing, "gas-cost")
	}

	cfg := Config{
		RPCURL:         getString(v, "rpc", "rpc_url"),
		DexARouter:     getString(v, "dex-a-router", "dex_a_router"),
		DexBRouter:     getString(v, "dex-b-router", "dex_b_router"),
		DexAName:       v.GetString("dex-a-name"),
		DexBName:       v.GetString("dex-b-name"),
		TokenA:         getString(v, "token-a", "token_a"),
		TokenB:         getString(v, "token-b", "token_b"),
		TokenADecimals: v.GetInt("token-a-decimals"),
		TokenBDecimals: v.GetInt("token-b-decimals"),
		MinProfit:      minProfit,
		TradeAmount:    tradeAmount,
		GasCost:        gasCost,
		Direction:      v.GetString("direction"),
		PGDSN:          v.GetString("pg-dsn"),
		Store:          strings.ToLower(v.GetString("store")),
		OutDir:         v.GetString("out-dir"),
		MetricsFile:    v.GetString("metrics-file"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		Timeout:        v.GetDuration("timeout"),
		LogLevel:       v.GetString("log-level"),
		missing:        missing,
	}

	return cfg, nil
}

// Validate reports the first missing or malformed value, wrapped in ErrInvalid.
func (c Config) Validate() error {
	if len(c.missing) > 0 {
		return fmt.Errorf("%w: %s is required", ErrInvalid, strings.Join(c.missing, ", "))
	}
	if c.RPCURL == "" {
		return fmt.Errorf("%w: rpc url is required", ErrInvalid)
	}
	for name, addr := range map[string]string{
		"dex-a-router": c.DexARouter,
		"dex-b-router": c.DexBRouter,
		"token-a":      c.TokenA,
		"token-b":      c.TokenB,
	} {
		if _, err := ParseAddress(addr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
		}
	}
	if strings.EqualFold(c.TokenA, c.TokenB) {
		return fmt.Errorf("%w: token-a and token-b must differ", ErrInvalid)
	}
	for name, label := range map[string]string{"dex-a-name": c.DexAName, "dex-b-name": c.DexBName} {
		if label == "" || len(label) > maxVenueNameLen {
			return fmt.Errorf("%w: %s must be 1-%d characters", ErrInvalid, name, maxVenueNameLen)
		}
	}
	for name, decimals := range map[string]int{"token-a-decimals": c.TokenADecimals, "token-b-decimals": c.TokenBDecimals} {
		if decimals < AutoDecimals || decimals > 77 {
			return fmt.Errorf("%w: %s out of range: %d", ErrInvalid, name, decimals)
		}
	}
	if !c.TradeAmount.IsPositive() {
		return fmt.Errorf("%w: trade-amount must be positive", ErrInvalid)
	}
	if c.GasCost.IsNegative() {
		return fmt.Errorf("%w: gas-cost must not be negative", ErrInvalid)
	}
	for name, value := range map[string]decimal.Decimal{
		"trade-amount": c.TradeAmount,
		"gas-cost":     c.GasCost,
		"min-profit":   c.MinProfit,
	} {
		if !value.Equal(value.Round(model.AmountPlaces)) {
			return fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalid, name, model.AmountPlaces)
		}
	}
	switch c.Direction {
	case "a-to-b", "b-to-a":
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalid, c.Direction)
	}
	switch c.Store {
	case StoreAuto, StoreNone:
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("%w: pg-dsn (or DATABASE_URL) is required for postgres store", ErrInvalid)
		}
	case StoreJsonl:
		if c.OutDir == "" {
			return fmt.Errorf("%w: out-dir is required for jsonl store", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max-retries must not be negative", ErrInvalid)
	}
	return nil
}

// ResolvedStore maps "auto" to postgres when a DSN is configured and to none
// otherwise.
func (c Config) ResolvedStore() string {
	if c.Store != StoreAuto {
		return c.Store
	}
	if c.PGDSN != "" {
		return StorePostgres
	}
	return StoreNone
}

// getString returns the first key that is set, falling back to the primary key.
func getString(v *viper.Viper, key string, aliases ...string) string {
	if v.IsSet(key) {
		return strings.TrimSpace(v.GetString(key))
	}
	for _, alias := range aliases {
		if v.IsSet(alias) {
			return strings.TrimSpace(v.GetString(alias))
		}
	}
	return strings.TrimSpace(v.GetString(key))
}

// getDecimal parses key (or an alias) exactly. ok is false when no source set
// it; an explicit zero is a value.
func getDecimal(v *viper.Viper, key string, aliases ...string) (value decimal.Decimal, ok bool, err error) {
	raw := getString(v, key, aliases...)
	if raw == "" {
		return decimal.Zero, false, nil
	}
	value, err = decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %s: %q is not a decimal", ErrInvalid, key, raw)
	}
	return value, true, nil
}
