package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sts.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server: {}\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != ":3300" {
		t.Fatalf("listen=%q", cfg.Server.Listen)
	}
	if cfg.Server.PidFile != DefaultPidFile {
		t.Fatalf("pid_file=%q", cfg.Server.PidFile)
	}
	if cfg.Gateway.URL != DefaultGatewayURL {
		t.Fatalf("gateway.url=%q", cfg.Gateway.URL)
	}
	if cfg.Gateway.ContentType != "text/xml" {
		t.Fatalf("content_type=%q", cfg.Gateway.ContentType)
	}
	if cfg.Gateway.TimeoutMs != 45000 || cfg.Gateway.ConnectTimeoutMs != 45000 {
		t.Fatalf("timeouts=%d/%d", cfg.Gateway.ConnectTimeoutMs, cfg.Gateway.TimeoutMs)
	}
	if cfg.Gateway.Params == nil || cfg.Gateway.Params.Len() != 0 {
		t.Fatalf("expected empty gateway params")
	}
	if cfg.Guides.AutoReload.DebounceMs != 300 {
		t.Fatalf("debounce_ms=%d", cfg.Guides.AutoReload.DebounceMs)
	}
	if !cfg.Logging.AccessLog || cfg.Logging.Level != "info" {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("metrics.path=%q", cfg.Metrics.Path)
	}
}

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.URL != DefaultGatewayURL {
		t.Fatalf("gateway.url=%q", cfg.Gateway.URL)
	}
}

func TestLoad_GatewayParamsKeepOrderAndLiteralText(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
gateway:
  params:
    Merchant_Number: 0111
    Terminal_ID: 111
    POS_Entry_Mode: "01"
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := strings.Join(cfg.Gateway.Params.Keys(), ",")
	if got != "Merchant_Number,Terminal_ID,POS_Entry_Mode" {
		t.Fatalf("keys=%s", got)
	}
	if v, _ := cfg.Gateway.Params.Get("Merchant_Number"); v != "0111" {
		t.Fatalf("Merchant_Number=%#v", v)
	}
}

func TestLoad_AccessLogCanBeDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  access_log: false\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Logging.AccessLog {
		t.Fatalf("expected access_log=false to be kept")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STS_LISTEN", "127.0.0.1:9000")
	t.Setenv("STS_API_KEY", "k1")
	t.Setenv("STS_GATEWAY_URL", "http://gw.local/testgateway.php")
	t.Setenv("STS_GATEWAY_TIMEOUT_MS", "1500")
	t.Setenv("STS_GATEWAY_CONNECT_TIMEOUT_MS", "500")
	t.Setenv("STS_GATEWAY_PROXY_URL", "http://127.0.0.1:7890")
	t.Setenv("STS_GUIDES_FILE", "/etc/sts/guides.yaml")
	t.Setenv("STS_GUIDES_AUTO_RELOAD_ENABLED", "yes")
	t.Setenv("STS_LOG_LEVEL", "DEBUG")
	t.Setenv("STS_ACCESS_LOG_PATH", "/tmp/access.log")
	t.Setenv("STS_ACCESS_LOG_FORMAT_PRESET", "sts_minimal")
	t.Setenv("STS_METRICS_ENABLED", "1")
	t.Setenv("STS_PID_FILE", "/tmp/sts.pid")

	cfg, err := Load(writeConfig(t, "gateway:\n  timeout_ms: 9000\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9000" || cfg.Auth.APIKey != "k1" || cfg.Server.PidFile != "/tmp/sts.pid" {
		t.Fatalf("server/auth=%+v %+v", cfg.Server, cfg.Auth)
	}
	if cfg.Gateway.URL != "http://gw.local/testgateway.php" || cfg.Gateway.TimeoutMs != 1500 || cfg.Gateway.ConnectTimeoutMs != 500 {
		t.Fatalf("gateway=%+v", cfg.Gateway)
	}
	if cfg.Gateway.ProxyURL != "http://127.0.0.1:7890" {
		t.Fatalf("proxy_url=%q", cfg.Gateway.ProxyURL)
	}
	if cfg.Guides.File != "/etc/sts/guides.yaml" || !cfg.Guides.AutoReload.Enabled {
		t.Fatalf("guides=%+v", cfg.Guides)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.AccessLogPath != "/tmp/access.log" || cfg.Logging.AccessLogFormatPreset != "sts_minimal" {
		t.Fatalf("logging=%+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Fatalf("expected metrics enabled")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "bad level", body: "logging:\n  level: loud\n", want: "logging.level"},
		{name: "bad gateway url", body: "gateway:\n  url: not-a-url\n", want: "gateway.url"},
		{name: "bad proxy url", body: "gateway:\n  proxy_url: nope\n", want: "gateway.proxy_url"},
		{name: "bad metrics path", body: "metrics:\n  path: metrics\n", want: "metrics.path"},
		{name: "auto reload without file", body: "guides:\n  auto_reload:\n    enabled: true\n", want: "guides.file"},
		{name: "nested gateway param", body: "gateway:\n  params:\n    A:\n      B: c\n", want: "gateway.params.A"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("STS_TEST_BOOL", "off")
	if envBool("STS_TEST_BOOL", true) {
		t.Fatalf("expected false")
	}
	t.Setenv("STS_TEST_BOOL", "maybe")
	if !envBool("STS_TEST_BOOL", true) {
		t.Fatalf("expected default on unparsable value")
	}
}
