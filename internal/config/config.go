// Package config loads the bot's settings from defaults, an optional config
// file, a .env file and the environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	KeyPartNumber        = "PART_NUMBER"
	KeyLocationCode      = "LOCATION_CODE"
	KeyBaseURI           = "BASE_URI"
	KeyTelegramToken     = "TELEGRAM_TOKEN"
	KeyTelegramChatID    = "TELEGRAM_CHAT_ID"
	KeyTelegramAPIURL    = "TELEGRAM_API_URL"
	KeyTelegramParseMode = "TELEGRAM_PARSE_MODE"
	KeyTelegramPin       = "TELEGRAM_PIN"
	KeyTelegramSilent    = "TELEGRAM_SILENT"
	KeyLinkURL           = "LINK_URL"
	KeyProxyURLs         = "PROXY_URLS"
	KeyRequestTimeout    = "REQUEST_TIMEOUT"
	KeyPollMinDelay      = "POLL_MIN_DELAY"
	KeyPollMaxDelay      = "POLL_MAX_DELAY"
	KeyErrorDelay        = "ERROR_DELAY"
	KeyNotifyMaxAttempts = "NOTIFY_MAX_ATTEMPTS"
	KeyNotifyRetryDelay  = "NOTIFY_RETRY_DELAY"
	KeyNotifyCooldown    = "NOTIFY_COOLDOWN"
	KeyArchiveDir        = "ARCHIVE_DIR"
	KeyArchiveName       = "ARCHIVE_NAME"
	KeyMetricsAddr       = "METRICS_ADDR"
	KeyStatusJSON        = "STATUS_JSON"
	KeyLogLevel          = "LOG_LEVEL"
	KeyLogFormat         = "LOG_FORMAT"
	KeyDebug             = "DEBUG"
)

const DefaultBaseURI = "https://www.apple.com/ca"

// ErrMissing is wrapped by Load when required settings are empty.
var ErrMissing = errors.New("missing required configuration")

type Config struct {
	PartNumber   string
	LocationCode string
	BaseURI      string

	TelegramToken     string
	TelegramChatID    string
	TelegramAPIURL    string
	TelegramParseMode string
	TelegramPin       bool
	TelegramSilent    bool
	LinkURL           string

	ProxyURLs      []string
	RequestTimeout time.Duration

	PollMinDelay time.Duration
	PollMaxDelay time.Duration
	ErrorDelay   time.Duration

	NotifyMaxAttempts int
	NotifyRetryDelay  time.Duration
	NotifyCooldown    time.Duration

	ArchiveDir  string
	ArchiveName string
	MetricsAddr string
	StatusJSON  bool

	LogLevel  string
	LogFormat string
	Debug     bool
}

// SetDefaults registers every optional key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURI, DefaultBaseURI)
	v.SetDefault(KeyTelegramAPIURL, "https://api.telegram.org")
	v.SetDefault(KeyTelegramParseMode, "")
	v.SetDefault(KeyTelegramPin, false)
	v.SetDefault(KeyTelegramSilent, false)
	v.SetDefault(KeyLinkURL, "")
	v.SetDefault(KeyProxyURLs, "")
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyPollMinDelay, 50*time.Second)
	v.SetDefault(KeyPollMaxDelay, 70*time.Second)
	v.SetDefault(KeyErrorDelay, 60*time.Second)
	v.SetDefault(KeyNotifyMaxAttempts, 10)
	v.SetDefault(KeyNotifyRetryDelay, 5*time.Second)
	v.SetDefault(KeyNotifyCooldown, 3*time.Second)
	v.SetDefault(KeyArchiveDir, "")
	v.SetDefault(KeyArchiveName, "AppleStore")
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyStatusJSON, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyDebug, false)
}

// ReadFiles merges an explicit config file, or else $HOME/.pickupwatch.yaml
// if it exists, and then a .env file from envFile if it exists.
func ReadFiles(v *viper.Viper, cfgFile, envFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName(".pickupwatch")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return fmt.Errorf("read config: %w", err)
			}
		}
	}

	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); err != nil {
		return nil
	}
	dotenv := viper.New()
	dotenv.SetConfigFile(envFile)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", envFile, err)
	}
	// Merged as config values so real environment variables still win.
	return v.MergeConfigMap(dotenv.AllSettings())
}

// Load reads every key from v, which should already have defaults, files and
// AutomaticEnv applied, and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		PartNumber:        strings.TrimSpace(v.GetString(KeyPartNumber)),
		LocationCode:      strings.TrimSpace(v.GetString(KeyLocationCode)),
		BaseURI:           strings.TrimRight(strings.TrimSpace(v.GetString(KeyBaseURI)), "/"),
		TelegramToken:     strings.TrimSpace(v.GetString(KeyTelegramToken)),
		TelegramChatID:    strings.TrimSpace(v.GetString(KeyTelegramChatID)),
		TelegramAPIURL:    v.GetString(KeyTelegramAPIURL),
		TelegramParseMode: v.GetString(KeyTelegramParseMode),
		TelegramPin:       v.GetBool(KeyTelegramPin),
		TelegramSilent:    v.GetBool(KeyTelegramSilent),
		LinkURL:           v.GetString(KeyLinkURL),
		ProxyURLs:         splitList(v.GetString(KeyProxyURLs)),
		NotifyMaxAttempts: v.GetInt(KeyNotifyMaxAttempts),
		ArchiveName:       v.GetString(KeyArchiveName),
		MetricsAddr:       v.GetString(KeyMetricsAddr),
		StatusJSON:        v.GetBool(KeyStatusJSON),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
		Debug:             v.GetBool(KeyDebug),
	}

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{KeyRequestTimeout, &cfg.RequestTimeout},
		{KeyPollMinDelay, &cfg.PollMinDelay},
		{KeyPollMaxDelay, &cfg.PollMaxDelay},
		{KeyErrorDelay, &cfg.ErrorDelay},
		{KeyNotifyRetryDelay, &cfg.NotifyRetryDelay},
		{KeyNotifyCooldown, &cfg.NotifyCooldown},
	}
	for _, d := range durations {
		if *d.dst, err = duration(v, d.key); err != nil {
			return nil, err
		}
	}

	if dir := v.GetString(KeyArchiveDir); dir != "" {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyArchiveDir, err)
		}
		cfg.ArchiveDir = expanded
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if cfg.LinkURL == "" && cfg.BaseURI != "" && cfg.PartNumber != "" {
		cfg.LinkURL = cfg.BaseURI + "/shop/product/" + cfg.PartNumber
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing required key at once, then range problems.
func (c *Config) Validate() error {
	var missing []string
	for _, kv := range []struct{ key, val string }{
		{KeyPartNumber, c.PartNumber},
		{KeyLocationCode, c.LocationCode},
		{KeyBaseURI, c.BaseURI},
		{KeyTelegramToken, c.TelegramToken},
		{KeyTelegramChatID, c.TelegramChatID},
	} {
		if kv.val == "" {
			missing = append(missing, kv.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	switch {
	case c.RequestTimeout <= 0:
		return fmt.Errorf("%s must be positive", KeyRequestTimeout)
	case c.PollMinDelay <= 0 || c.PollMaxDelay < c.PollMinDelay:
		return fmt.Errorf("%s/%s must satisfy 0 < min <= max", KeyPollMinDelay, KeyPollMaxDelay)
	case c.ErrorDelay <= 0:
		return fmt.Errorf("%s must be positive", KeyErrorDelay)
	case c.NotifyMaxAttempts < 1:
		return fmt.Errorf("%s must be at least 1", KeyNotifyMaxAttempts)
	case c.NotifyRetryDelay < 0 || c.NotifyCooldown < 0:
		return fmt.Errorf("%s and %s must not be negative", KeyNotifyRetryDelay, KeyNotifyCooldown)
	}
	return nil
}

// duration accepts Go duration strings; bare integers are seconds.
func duration(v *viper.Viper, key string) (time.Duration, error) {
	switch raw := v.Get(key).(type) {
	case time.Duration:
		return raw, nil
	case int:
		return time.Duration(raw) * time.Second, nil
	case int64:
		return time.Duration(raw) * time.Second, nil
	case float64:
		return time.Duration(raw * float64(time.Second)), nil
	case string:
		raw = strings.TrimSpace(raw)
		if n, err := strconv.Atoi(raw); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return d, nil
	default:
		return v.GetDuration(key), nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
