package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/ruianderson/sts-proxy/internal/stsserver"
	"github.com/ruianderson/sts-proxy/internal/version"
	"github.com/ruianderson/sts-proxy/pkg/config"
	"github.com/ruianderson/sts-proxy/pkg/guides"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args and dispatches to one of: version, config check, signal,
// or serving. It returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sts-proxy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath     string
		signalCmd   string
		checkOnly   bool
		showVersion bool
	)
	fs.StringVar(&cfgPath, "config", "sts.yaml", "path to config yaml")
	fs.StringVar(&cfgPath, "c", "sts.yaml", "path to config yaml (alias of --config)")
	fs.StringVar(&signalCmd, "s", "", "send signal to a running sts-proxy (supported: reload)")
	fs.BoolVar(&checkOnly, "t", false, "check config and guides file, then exit")
	fs.BoolVar(&showVersion, "version", false, "show version information")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	switch {
	case showVersion:
		_, _ = fmt.Fprintln(stdout, version.Get())
		return 0
	case checkOnly:
		if err := checkConfig(cfgPath, stdout); err != nil {
			_, _ = fmt.Fprintf(stderr, "sts-proxy: check failed: %v\n", err)
			return 1
		}
		return 0
	}

	if cmd := strings.ToLower(strings.TrimSpace(signalCmd)); cmd != "" {
		if cmd != "reload" {
			_, _ = fmt.Fprintf(stderr, "unsupported -s value: %s (supported: reload)\n", cmd)
			return 2
		}
		if err := sendReloadSignal(cfgPath); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	if err := stsserver.Run(cfgPath); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// checkConfig loads the config and, when one is configured, the guides file.
// A configured guides file must exist here even though the server would fall
// back to the built-in guides.
func checkConfig(cfgPath string, w io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config %q: %w", cfgPath, err)
	}
	src := "<builtin>"
	reg := guides.Builtin()
	if p := strings.TrimSpace(cfg.Guides.File); p != "" {
		if reg, err = guides.Load(p); err != nil {
			return fmt.Errorf("guides %q: %w", p, err)
		}
		src = p
	}
	_, err = fmt.Fprintf(w, "config %s ok; guides %s ok (%s)\n", cfgPath, src, strings.Join(reg.Actions(), ", "))
	return err
}

func sendReloadSignal(cfgPath string) error {
	pidFile, err := pidFileFromConfig(cfgPath)
	if err != nil {
		return err
	}
	pid, err := readPID(pidFile)
	if err != nil {
		return err
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process pid=%d: %w", pid, err)
	}
	if err := p.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("send SIGHUP pid=%d: %w", pid, err)
	}
	return nil
}

func readPID(path string) (int, error) {
	// #nosec G304 -- pid file path comes from trusted config/env.
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pid file %q: %w", path, err)
	}
	s := strings.TrimSpace(string(b))
	pid, err := strconv.Atoi(s)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %q: %q", path, s)
	}
	return pid, nil
}

// pidFileFromConfig reads only server.pid_file so a reload can be signalled
// even when the rest of the config no longer validates.
func pidFileFromConfig(cfgPath string) (string, error) {
	if v := strings.TrimSpace(os.Getenv("STS_PID_FILE")); v != "" {
		return v, nil
	}
	path := strings.TrimSpace(cfgPath)
	if path == "" {
		return config.DefaultPidFile, nil
	}
	// #nosec G304 -- config path comes from trusted flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config %q: %w", path, err)
	}
	var partial struct {
		Server struct {
			PidFile string `yaml:"pid_file"`
		} `yaml:"server"`
	}
	if err := yaml.Unmarshal(b, &partial); err != nil {
		return "", fmt.Errorf("parse config %q: %w", path, err)
	}
	if v := strings.TrimSpace(partial.Server.PidFile); v != "" {
		return v, nil
	}
	return config.DefaultPidFile, nil
}
