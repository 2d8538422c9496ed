// Package config assembles the process configuration once at startup.
// All configuration comes from the environment (optionally seeded from
// .env files); the resulting value is passed explicitly into every
// component instead of living in ambient global state.
package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultAllowanceModuleAddress is the canonical AllowanceModule
// deployment shared across the networks we operate on. Overridable via
// SAFE_ALLOWANCE_MODULE_ADDRESS for chains with a different deployment.
const DefaultAllowanceModuleAddress = "0xCFbFaC74C26F8647cBDb8c5caf80BB5b32E43134"

// AssetRefill is the refill policy for one tracked asset. Amounts are
// decimal strings in the asset's base units (wei for the native asset).
type AssetRefill struct {
	LowThreshold string
	RefillAmount string
}

// Logger holds logging configuration.
type Logger struct {
	Level              string
	PrettyPrintConsole bool
}

// Config is the full configuration surface of the toolkit.
type Config struct {
	RPCURLs                []string
	SafeAddress            string
	AllowanceModuleAddress string
	RelayBaseURL           string

	TokenAddress string
	Token        AssetRefill
	Native       AssetRefill

	AlertWebhookURL string
	LockPath        string

	KeystoreFile       string
	KeystorePassphrase string `json:"-"`
	DelegateKeyHex     string `json:"-"`

	Logger Logger
}

var loadDotEnvOnce sync.Once

// DefaultConfigFromEnv builds the configuration from the environment.
// Real environment variables always win over .env file entries, which
// win over built-in defaults.
func DefaultConfigFromEnv() Config {
	loadDotEnvOnce.Do(func() {
		// gotenv never overrides variables that are already set.
		_ = gotenv.Load(".env.local")
		_ = gotenv.Load(".env")
	})

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SAFE_ALLOWANCE_MODULE_ADDRESS", DefaultAllowanceModuleAddress)
	v.SetDefault("REFILL_LOCK_PATH", filepath.Join(os.TempDir(), "safe-refill.lock"))
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY_PRINT_CONSOLE", false)

	return Config{
		RPCURLs:                splitList(v.GetString("SAFE_RPC_URLS")),
		SafeAddress:            v.GetString("SAFE_ADDRESS"),
		AllowanceModuleAddress: v.GetString("SAFE_ALLOWANCE_MODULE_ADDRESS"),
		RelayBaseURL:           v.GetString("SAFE_RELAY_URL"),

		TokenAddress: v.GetString("REFILL_TOKEN_ADDRESS"),
		Token: AssetRefill{
			LowThreshold: v.GetString("REFILL_TOKEN_LOW_THRESHOLD"),
			RefillAmount: v.GetString("REFILL_TOKEN_AMOUNT"),
		},
		Native: AssetRefill{
			LowThreshold: v.GetString("REFILL_NATIVE_LOW_THRESHOLD"),
			RefillAmount: v.GetString("REFILL_NATIVE_AMOUNT"),
		},

		AlertWebhookURL: v.GetString("REFILL_ALERT_WEBHOOK_URL"),
		LockPath:        v.GetString("REFILL_LOCK_PATH"),

		KeystoreFile:       v.GetString("SAFE_KEYSTORE_FILE"),
		KeystorePassphrase: v.GetString("SAFE_KEYSTORE_PASSPHRASE"),
		DelegateKeyHex:     v.GetString("SAFE_DELEGATE_KEY"),

		Logger: Logger{
			Level:              v.GetString("LOG_LEVEL"),
			PrettyPrintConsole: v.GetBool("LOG_PRETTY_PRINT_CONSOLE"),
		},
	}
}

// Validate checks the settings every command depends on. There is
// deliberately no default or public fallback for the RPC endpoint.
func (c Config) Validate() error {
	var missing []string

	if len(c.RPCURLs) == 0 {
		missing = append(missing, "SAFE_RPC_URLS")
	}
	if c.SafeAddress == "" {
		missing = append(missing, "SAFE_ADDRESS")
	}

	if len(missing) > 0 {
		return errors.Errorf("missing mandatory configuration: %s", strings.Join(missing, ", "))
	}

	if !common.IsHexAddress(c.SafeAddress) {
		return errors.Errorf("SAFE_ADDRESS %q is not a valid address", c.SafeAddress)
	}
	if !common.IsHexAddress(c.AllowanceModuleAddress) {
		return errors.Errorf("SAFE_ALLOWANCE_MODULE_ADDRESS %q is not a valid address", c.AllowanceModuleAddress)
	}

	return nil
}

// ValidateRelay additionally requires the transaction-service URL,
// needed by the proposal commands but not by refill runs.
func (c Config) ValidateRelay() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.RelayBaseURL == "" {
		return errors.New("missing mandatory configuration: SAFE_RELAY_URL")
	}
	return nil
}

// ParseBaseUnits parses a decimal base-unit amount.
func ParseBaseUnits(value string) (*big.Int, error) {
	const base10 = 10

	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), base10)
	if !ok {
		return nil, errors.Errorf("invalid base-unit amount %q", value)
	}

	return amount, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
