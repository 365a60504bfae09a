package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct{ Env, Port, BaseURL, MerchantName, LogLevel string }

type GatewayCfg struct {
	Driver   string // mock | daraja | relay
	RelayURL string
	Timeout  time.Duration
}

type MpesaCfg struct {
	Environment     string // sandbox | production
	BaseURL         string // overrides the environment's API host when set
	ConsumerKey     string
	ConsumerSecret  string
	Shortcode       string
	Passkey         string
	CallbackURL     string
	TransactionType string
}

type PollCfg struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
	Timeout      time.Duration
	DisplayDelay time.Duration
}

type MockCfg struct {
	StartDelay       time.Duration
	StatusDelay      time.Duration
	StartFailureRate float64
	CompletedRatio   float64
	PendingRatio     float64
}

type RedisCfg struct {
	Addr     string
	Password string
	DB       int
}

type Cfg struct {
	App     AppCfg
	Gateway GatewayCfg
	Mpesa   MpesaCfg
	Poll    PollCfg
	Mock    MockCfg
	Redis   RedisCfg
}

// Load reads .env (when present) and the process environment, and exits on
// an unusable configuration.
func Load() Cfg {
	// 1) .env into process env; a missing file is fine
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("could not read .env")
	}

	// 2) env via viper
	v := viper.New()
	v.AutomaticEnv()
	SetDefaults(v)

	if tz := v.GetString("TZ"); tz != "" {
		applyTimezone(tz)
	}

	cfg := FromViper(v)

	// 3) fail fast
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}

// SetDefaults registers every default the checkout runs with.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "sandbox")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("MERCHANT_NAME", "Your Business Name")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TZ", "Africa/Nairobi")

	v.SetDefault("GATEWAY_DRIVER", "mock")
	v.SetDefault("GATEWAY_TIMEOUT", "30s")

	v.SetDefault("MPESA_ENVIRONMENT", "sandbox")
	v.SetDefault("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline")

	v.SetDefault("POLL_INITIAL_DELAY", "5s")
	v.SetDefault("POLL_INTERVAL", "3s")
	v.SetDefault("POLL_MAX_ATTEMPTS", 20)
	v.SetDefault("POLL_TIMEOUT", "120s")
	v.SetDefault("POLL_DISPLAY_DELAY", "2s")

	v.SetDefault("MOCK_START_DELAY", "2s")
	v.SetDefault("MOCK_STATUS_DELAY", "1500ms")
	v.SetDefault("MOCK_START_FAILURE_RATE", 0.1)
	v.SetDefault("MOCK_COMPLETED_RATIO", 0.7)
	v.SetDefault("MOCK_PENDING_RATIO", 0.2)

	v.SetDefault("REDIS_DB", 0)
}

// FromViper maps viper keys onto Cfg without validating.
func FromViper(v *viper.Viper) Cfg {
	return Cfg{
		App: AppCfg{
			Env:          v.GetString("APP_ENV"),
			Port:         v.GetString("APP_PORT"),
			BaseURL:      strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
			MerchantName: v.GetString("MERCHANT_NAME"),
			LogLevel:     v.GetString("LOG_LEVEL"),
		},
		Gateway: GatewayCfg{
			Driver:   strings.ToLower(strings.TrimSpace(v.GetString("GATEWAY_DRIVER"))),
			RelayURL: strings.TrimRight(v.GetString("RELAY_URL"), "/"),
			Timeout:  v.GetDuration("GATEWAY_TIMEOUT"),
		},
		Mpesa: MpesaCfg{
			Environment:     v.GetString("MPESA_ENVIRONMENT"),
			BaseURL:         strings.TrimRight(v.GetString("MPESA_BASE_URL"), "/"),
			ConsumerKey:     strings.TrimSpace(v.GetString("MPESA_CONSUMER_KEY")),
			ConsumerSecret:  strings.TrimSpace(v.GetString("MPESA_CONSUMER_SECRET")),
			Shortcode:       strings.TrimSpace(v.GetString("MPESA_BUSINESS_SHORT_CODE")),
			Passkey:         strings.TrimSpace(v.GetString("MPESA_PASSKEY")),
			CallbackURL:     v.GetString("MPESA_CALLBACK_URL"),
			TransactionType: v.GetString("MPESA_TRANSACTION_TYPE"),
		},
		Poll: PollCfg{
			InitialDelay: v.GetDuration("POLL_INITIAL_DELAY"),
			Interval:     v.GetDuration("POLL_INTERVAL"),
			MaxAttempts:  v.GetInt("POLL_MAX_ATTEMPTS"),
			Timeout:      v.GetDuration("POLL_TIMEOUT"),
			DisplayDelay: v.GetDuration("POLL_DISPLAY_DELAY"),
		},
		Mock: MockCfg{
			StartDelay:       v.GetDuration("MOCK_START_DELAY"),
			StatusDelay:      v.GetDuration("MOCK_STATUS_DELAY"),
			StartFailureRate: v.GetFloat64("MOCK_START_FAILURE_RATE"),
			CompletedRatio:   v.GetFloat64("MOCK_COMPLETED_RATIO"),
			PendingRatio:     v.GetFloat64("MOCK_PENDING_RATIO"),
		},
		Redis: RedisCfg{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
	}
}

// Validate checks that the selected gateway driver has what it needs.
func (c Cfg) Validate() error {
	switch c.Gateway.Driver {
	case "mock":
		if c.Mock.CompletedRatio+c.Mock.PendingRatio > 1 {
			return fmt.Errorf("MOCK_COMPLETED_RATIO + MOCK_PENDING_RATIO must not exceed 1")
		}
	case "daraja":
		var missing []string
		for k, val := range map[string]string{
			"MPESA_CONSUMER_KEY":        c.Mpesa.ConsumerKey,
			"MPESA_CONSUMER_SECRET":     c.Mpesa.ConsumerSecret,
			"MPESA_BUSINESS_SHORT_CODE": c.Mpesa.Shortcode,
			"MPESA_PASSKEY":             c.Mpesa.Passkey,
		} {
			if val == "" {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("daraja driver requires %s", strings.Join(missing, ", "))
		}
		if c.CallbackURL() == "" {
			return fmt.Errorf("daraja driver requires MPESA_CALLBACK_URL or APP_BASE_URL")
		}
	case "relay":
		if c.Gateway.RelayURL == "" {
			return fmt.Errorf("relay driver requires RELAY_URL")
		}
	default:
		return fmt.Errorf("unknown GATEWAY_DRIVER %q", c.Gateway.Driver)
	}

	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}
	if c.Poll.Timeout <= 0 || c.Poll.Interval <= 0 {
		return fmt.Errorf("POLL_TIMEOUT and POLL_INTERVAL must be positive")
	}
	return nil
}

// CallbackURL is where Daraja posts STK results. Without an explicit value
// it points at this relay's own /callback route.
func (c Cfg) CallbackURL() string {
	if c.Mpesa.CallbackURL != "" {
		return c.Mpesa.CallbackURL
	}
	if c.App.BaseURL == "" {
		return ""
	}
	return c.App.BaseURL + "/callback"
}


// applyTimezone sets the process-wide local zone. Setting the TZ variable
// is not enough once time.Local has been read.
func applyTimezone(tz string) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Error().Err(err).Str("tz", tz).Msg("unknown timezone, keeping local time")
		return err
	}
	time.Local = loc
	return nil
}
