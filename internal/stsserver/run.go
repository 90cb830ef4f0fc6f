package stsserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ruianderson/sts-proxy/internal/logx"
	"github.com/ruianderson/sts-proxy/internal/metrics"
	"github.com/ruianderson/sts-proxy/pkg/communicator"
	"github.com/ruianderson/sts-proxy/pkg/config"
	"github.com/ruianderson/sts-proxy/pkg/guides"
	"github.com/ruianderson/sts-proxy/pkg/transport"
)

// Run loads cfgPath and serves until SIGINT or SIGTERM.
func Run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logx.NewLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	accessLogger, accessClose, accessColor, err := openAccessLogger(cfg)
	if err != nil {
		return fmt.Errorf("init access log: %w", err)
	}
	if accessClose != nil {
		defer func() { _ = accessClose.Close() }()
	}

	pidCleanup, err := writePIDFile(cfg)
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if pidCleanup != nil {
		defer func() { _ = pidCleanup.Close() }()
	}

	reg, err := guides.LoadOrBuiltin(cfg.Guides.File)
	if err != nil {
		return err
	}
	store := guides.NewStore(reg)
	logger.Info("guides loaded", zap.String("file", cfg.Guides.File), zap.Strings("actions", reg.Actions()))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.ObserveReload("startup", reg.Len(), nil)
	}

	comm, err := newCommunicator(cfg, store, m, logger)
	if err != nil {
		return err
	}

	reloadMu := &sync.Mutex{}
	stopSignal := installReloadSignalHandler(cfg, store, m, logger, reloadMu)
	defer stopSignal()
	autoReloadClose, err := installGuidesAutoReload(cfg, store, m, logger, reloadMu)
	if err != nil {
		return fmt.Errorf("init guides auto reload: %w", err)
	}
	if autoReloadClose != nil {
		defer func() { _ = autoReloadClose.Close() }()
	}

	accessFormat, err := logx.ResolveAccessLogFormat(cfg.Logging.AccessLogFormat, cfg.Logging.AccessLogFormatPreset)
	if err != nil {
		return fmt.Errorf("resolve access log format: %w", err)
	}
	accessFormatter, err := logx.CompileAccessLogFormat(accessFormat)
	if err != nil {
		return fmt.Errorf("compile access_log_format: %w", err)
	}

	engine := NewRouter(routerDeps{
		cfg:          cfg,
		store:        store,
		comm:         comm,
		metrics:      m,
		log:          logger,
		accessLogger: accessLogger,
		accessColor:  accessColor,
		accessFormat: accessFormatter,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      engine,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("sts-proxy listening", zap.String("listen", cfg.Server.Listen), zap.String("gateway", cfg.Gateway.URL))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("run: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newCommunicator(cfg *config.Config, store *guides.Store, m *metrics.Metrics, logger *zap.Logger) (*communicator.Communicator, error) {
	client, err := transport.NewHTTPClient(transport.ClientOptions{
		ConnectTimeout: time.Duration(cfg.Gateway.ConnectTimeoutMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.Gateway.TimeoutMs) * time.Millisecond,
		ProxyURL:       cfg.Gateway.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init gateway client: %w", err)
	}
	tr := &transport.HTTP{
		Client:           client,
		MaxResponseBytes: cfg.Gateway.MaxResponseBytes,
	}
	opts := communicator.Options{
		Endpoint:    cfg.Gateway.URL,
		ContentType: cfg.Gateway.ContentType,
		Defaults:    cfg.Gateway.Params,
		Logger:      logger.Named("communicator"),
	}
	if m != nil {
		tr.OnResponse = m.ObserveGatewayResponse
		opts.Observer = m
	}
	return communicator.New(store, tr, opts), nil
}

func openAccessLogger(cfg *config.Config) (*log.Logger, io.Closer, bool, error) {
	if cfg == nil || !cfg.Logging.AccessLog {
		return nil, nil, false, nil
	}

	path := strings.TrimSpace(cfg.Logging.AccessLogPath)
	if path == "" {
		return log.New(os.Stdout, "", 0), nil, logx.ColorEnabled(), nil
	}

	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, false, err
		}
	}
	// #nosec G304 -- access_log_path comes from trusted config/env.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, false, err
	}
	return log.New(f, "", 0), f, false, nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func writePIDFile(cfg *config.Config) (io.Closer, error) {
	if cfg == nil {
		return nil, nil
	}
	path := strings.TrimSpace(cfg.Server.PidFile)
	if path == "" {
		return nil, nil
	}
	dir := filepath.Dir(path)
	if strings.TrimSpace(dir) != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}

	tmp := path + ".tmp"
	pid := strconv.Itoa(os.Getpid()) + "\n"
	// #nosec G304 -- pid_file comes from trusted config/env.
	if err := os.WriteFile(tmp, []byte(pid), 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return closerFunc(func() error { return os.Remove(path) }), nil
}
