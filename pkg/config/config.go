// Package config loads the sts-proxy yaml config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ruianderson/sts-proxy/pkg/params"
)

const (
	DefaultGatewayURL = "https://www.smart-transactions.com/testgateway.php"
	DefaultPidFile    = "/var/run/sts-proxy.pid"

	defaultGatewayTimeoutMs = 45000
	defaultMaxResponseBytes = 1 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type AutoReloadConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms" validate:"gte=0"`
}

type GatewayConfig struct {
	URL              string `yaml:"url" validate:"required,url"`
	ContentType      string `yaml:"content_type" validate:"required"`
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms" validate:"gt=0"`
	TimeoutMs        int    `yaml:"timeout_ms" validate:"gt=0"`
	MaxResponseBytes int64  `yaml:"max_response_bytes" validate:"gt=0"`
	// ProxyURL routes gateway traffic through an HTTP(S) or SOCKS5 proxy.
	ProxyURL string `yaml:"proxy_url" validate:"omitempty,url"`
	// Params are protocol-level fields sent with every request (merchant
	// number, terminal id). Order is preserved.
	Params *params.Map `yaml:"params" validate:"-"`
}

type LoggingConfig struct {
	Level                 string `yaml:"level" validate:"oneof=debug info warn error"`
	AccessLog             bool   `yaml:"access_log"`
	AccessLogPath         string `yaml:"access_log_path"`
	AccessLogFormat       string `yaml:"access_log_format"`
	AccessLogFormatPreset string `yaml:"access_log_format_preset"`

	accessLogSet bool `yaml:"-"`
}

func (c *LoggingConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawLogging struct {
		Level                 string `yaml:"level"`
		AccessLog             bool   `yaml:"access_log"`
		AccessLogPath         string `yaml:"access_log_path"`
		AccessLogFormat       string `yaml:"access_log_format"`
		AccessLogFormatPreset string `yaml:"access_log_format_preset"`
	}
	var raw rawLogging
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = LoggingConfig{
		Level:                 raw.Level,
		AccessLog:             raw.AccessLog,
		AccessLogPath:         raw.AccessLogPath,
		AccessLogFormat:       raw.AccessLogFormat,
		AccessLogFormatPreset: raw.AccessLogFormatPreset,
	}
	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		if strings.TrimSpace(value.Content[i].Value) == "access_log" {
			c.accessLogSet = true
		}
	}
	return nil
}

type Config struct {
	Server struct {
		Listen         string `yaml:"listen" validate:"required"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms" validate:"gt=0"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms" validate:"gt=0"`
		PidFile        string `yaml:"pid_file"`
	} `yaml:"server"`

	Auth struct {
		// APIKey, when set, is required on every /v1 request.
		APIKey string `yaml:"api_key"`
	} `yaml:"auth"`

	Gateway GatewayConfig `yaml:"gateway"`

	Guides struct {
		// File is an optional guides yaml. If not set or missing, the
		// built-in guides are served.
		File       string           `yaml:"file"`
		AutoReload AutoReloadConfig `yaml:"auto_reload"`
	} `yaml:"guides"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" validate:"omitempty,startswith=/"`
	} `yaml:"metrics"`

	Logging LoggingConfig `yaml:"logging"`
}

// Load reads path, applies defaults and STS_* environment overrides, then
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		// #nosec G304 -- path is provided by trusted config/flag.
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":3300"
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 60000
	}
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = 60000
	}
	if strings.TrimSpace(cfg.Server.PidFile) == "" {
		cfg.Server.PidFile = DefaultPidFile
	}
	if strings.TrimSpace(cfg.Gateway.URL) == "" {
		cfg.Gateway.URL = DefaultGatewayURL
	}
	if strings.TrimSpace(cfg.Gateway.ContentType) == "" {
		cfg.Gateway.ContentType = "text/xml"
	}
	if cfg.Gateway.ConnectTimeoutMs <= 0 {
		cfg.Gateway.ConnectTimeoutMs = defaultGatewayTimeoutMs
	}
	if cfg.Gateway.TimeoutMs <= 0 {
		cfg.Gateway.TimeoutMs = defaultGatewayTimeoutMs
	}
	if cfg.Gateway.MaxResponseBytes <= 0 {
		cfg.Gateway.MaxResponseBytes = defaultMaxResponseBytes
	}
	if cfg.Gateway.Params == nil {
		cfg.Gateway.Params = params.New(0)
	}
	if cfg.Guides.AutoReload.DebounceMs <= 0 {
		cfg.Guides.AutoReload.DebounceMs = 300
	}
	if strings.TrimSpace(cfg.Metrics.Path) == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	// default true unless explicitly disabled
	if !cfg.Logging.accessLogSet {
		cfg.Logging.AccessLog = true
	}
}

func applyEnvOverrides(cfg *Config) {
	applyEnvServerAuthOverrides(cfg)
	applyEnvGatewayOverrides(cfg)
	applyEnvGuidesOverrides(cfg)
	applyEnvLoggingOverrides(cfg)
}

func applyEnvServerAuthOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("STS_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("STS_API_KEY")); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("STS_PID_FILE")); v != "" {
		cfg.Server.PidFile = v
	}
	cfg.Metrics.Enabled = envBool("STS_METRICS_ENABLED", cfg.Metrics.Enabled)
}

func applyEnvGatewayOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("STS_GATEWAY_URL")); v != "" {
		cfg.Gateway.URL = v
	}
	if n, ok := envInt("STS_GATEWAY_TIMEOUT_MS"); ok && n > 0 {
		cfg.Gateway.TimeoutMs = n
	}
	if n, ok := envInt("STS_GATEWAY_CONNECT_TIMEOUT_MS"); ok && n > 0 {
		cfg.Gateway.ConnectTimeoutMs = n
	}
	if v, ok := os.LookupEnv("STS_GATEWAY_PROXY_URL"); ok {
		// Allow unsetting by providing empty string.
		cfg.Gateway.ProxyURL = strings.TrimSpace(v)
	}
}

func applyEnvGuidesOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("STS_GUIDES_FILE")); v != "" {
		cfg.Guides.File = v
	}
	cfg.Guides.AutoReload.Enabled = envBool("STS_GUIDES_AUTO_RELOAD_ENABLED", cfg.Guides.AutoReload.Enabled)
}

func applyEnvLoggingOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("STS_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("STS_ACCESS_LOG_PATH")); v != "" {
		cfg.Logging.AccessLogPath = v
	}
	if v := os.Getenv("STS_ACCESS_LOG_FORMAT"); strings.TrimSpace(v) != "" {
		cfg.Logging.AccessLogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("STS_ACCESS_LOG_FORMAT_PRESET")); v != "" {
		cfg.Logging.AccessLogFormatPreset = v
	}
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return validationError(err)
	}
	if cfg.Guides.AutoReload.Enabled && strings.TrimSpace(cfg.Guides.File) == "" {
		return errors.New("guides.file is required when guides.auto_reload.enabled=true")
	}
	var bad error
	cfg.Gateway.Params.Range(func(k string, v any) bool {
		if _, ok := params.Scalar(v); !ok {
			bad = fmt.Errorf("gateway.params.%s must be a scalar", k)
			return false
		}
		return true
	})
	return bad
}

// validationError flattens validator errors into one message naming the yaml
// path of each failing field.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", yamlPath(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

var yamlNames = map[string]string{
	"Server":           "server",
	"Listen":           "listen",
	"ReadTimeoutMs":    "read_timeout_ms",
	"WriteTimeoutMs":   "write_timeout_ms",
	"Gateway":          "gateway",
	"URL":              "url",
	"ContentType":      "content_type",
	"ConnectTimeoutMs": "connect_timeout_ms",
	"TimeoutMs":        "timeout_ms",
	"MaxResponseBytes": "max_response_bytes",
	"ProxyURL":         "proxy_url",
	"Guides":           "guides",
	"AutoReload":       "auto_reload",
	"DebounceMs":       "debounce_ms",
	"Metrics":          "metrics",
	"Path":             "path",
	"Logging":          "logging",
	"Level":            "level",
}

func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, p := range parts {
		if n, ok := yamlNames[p]; ok {
			parts[i] = n
		}
	}
	return strings.Join(parts, ".")
}
