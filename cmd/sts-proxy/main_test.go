package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruianderson/sts-proxy/internal/version"

	"github.com/ruianderson/sts-proxy/pkg/config"
)

func TestPidFileFromConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("from config", func(t *testing.T) {
		p := filepath.Join(dir, "a.yaml")
		if err := os.WriteFile(p, []byte("server:\n  pid_file: /tmp/x.pid\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := pidFileFromConfig(p)
		if err != nil || got != "/tmp/x.pid" {
			t.Fatalf("got=%q err=%v", got, err)
		}
	})

	t.Run("default when unset", func(t *testing.T) {
		p := filepath.Join(dir, "b.yaml")
		if err := os.WriteFile(p, []byte("gateway: {}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := pidFileFromConfig(p)
		if err != nil || got != config.DefaultPidFile {
			t.Fatalf("got=%q err=%v", got, err)
		}
	})

	t.Run("env wins", func(t *testing.T) {
		t.Setenv("STS_PID_FILE", "/run/sts.pid")
		got, err := pidFileFromConfig(filepath.Join(dir, "missing.yaml"))
		if err != nil || got != "/run/sts.pid" {
			t.Fatalf("got=%q err=%v", got, err)
		}
	})

	t.Run("missing config", func(t *testing.T) {
		if _, err := pidFileFromConfig(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestSendReloadSignal_InvalidPid(t *testing.T) {
	dir := t.TempDir()
	pid := filepath.Join(dir, "sts.pid")
	if err := os.WriteFile(pid, []byte("not-a-pid\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "sts.yaml")
	if err := os.WriteFile(cfg, []byte("server:\n  pid_file: "+pid+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := sendReloadSignal(cfg); err == nil {
		t.Fatalf("expected invalid pid error")
	}
}

func TestRun_CheckConfig(t *testing.T) {
	dir := t.TempDir()
	guidesPath := filepath.Join(dir, "guides.yaml")
	if err := os.WriteFile(guidesPath, []byte("guides:\n  refund:\n    input:\n      - {external: number, internal: Card_Number}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "sts.yaml")
	if err := os.WriteFile(cfg, []byte("guides:\n  file: "+guidesPath+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out, errOut bytes.Buffer
	if code := run([]string{"-t", "-c", cfg}, &out, &errOut); code != 0 {
		t.Fatalf("code=%d stderr=%s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "guides "+guidesPath+" ok (refund)") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	missing := filepath.Join(dir, "missing-guides.yaml")
	if err := os.WriteFile(cfg, []byte("guides:\n  file: "+missing+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	errOut.Reset()
	if code := run([]string{"-t", "-c", cfg}, &out, &errOut); code != 1 {
		t.Fatalf("expected exit 1 for missing guides file, got %d", code)
	}
	if !strings.Contains(errOut.String(), "check failed") {
		t.Fatalf("stderr=%q", errOut.String())
	}
}

func TestRun_CheckConfigInvalid(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "sts.yaml")
	if err := os.WriteFile(cfg, []byte("logging:\n  level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out, errOut bytes.Buffer
	if code := run([]string{"-t", "-c", cfg}, &out, &errOut); code != 1 {
		t.Fatalf("code=%d", code)
	}
	if !strings.Contains(errOut.String(), "logging.level") {
		t.Fatalf("stderr=%q", errOut.String())
	}
}

func TestRun_VersionAndBadFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"--version"}, &out, &errOut); code != 0 {
		t.Fatalf("code=%d", code)
	}
	if strings.TrimSpace(out.String()) != version.Get() {
		t.Fatalf("version=%q", out.String())
	}

	if code := run([]string{"-s", "stop", "-c", ""}, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2 for unsupported signal, got %d", code)
	}
	if code := run([]string{"--no-such-flag"}, &out, &errOut); code != 2 {
		t.Fatalf("expected exit 2 for unknown flag, got %d", code)
	}
}
