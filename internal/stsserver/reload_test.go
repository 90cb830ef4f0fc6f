package stsserver

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ruianderson/sts-proxy/pkg/config"
	"github.com/ruianderson/sts-proxy/pkg/guides"
)

const refundGuides = `
guides:
  refund:
    input:
      - {external: number, internal: Card_Number}
    output:
      - {input: Response_Code, result: code}
`

func TestShouldTriggerGuidesReload(t *testing.T) {
	target := "/etc/sts/guides.yaml"

	t.Run("empty name", func(t *testing.T) {
		if shouldTriggerGuidesReload(fsnotify.Event{Name: "", Op: fsnotify.Write}, target) {
			t.Fatalf("expected false for empty event name")
		}
	})

	t.Run("chmod ignored", func(t *testing.T) {
		if shouldTriggerGuidesReload(fsnotify.Event{Name: target, Op: fsnotify.Chmod}, target) {
			t.Fatalf("expected false for chmod")
		}
	})

	t.Run("sibling file ignored", func(t *testing.T) {
		if shouldTriggerGuidesReload(fsnotify.Event{Name: "/etc/sts/sts.yaml", Op: fsnotify.Write}, target) {
			t.Fatalf("expected false for another file")
		}
	})

	t.Run("write", func(t *testing.T) {
		if !shouldTriggerGuidesReload(fsnotify.Event{Name: target, Op: fsnotify.Write}, target) {
			t.Fatalf("expected true for write")
		}
	})

	t.Run("rename into place", func(t *testing.T) {
		if !shouldTriggerGuidesReload(fsnotify.Event{Name: "/etc/sts/./guides.yaml", Op: fsnotify.Create}, target) {
			t.Fatalf("expected true for create")
		}
	})
}

func TestReloadGuides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(refundGuides), 0o600))
	cfg := &config.Config{}
	cfg.Guides.File = path

	store := guides.NewStore(guides.Builtin())
	reg, err := reloadGuides(cfg, store)
	require.NoError(t, err)
	require.Equal(t, []string{"refund"}, reg.Actions())
	require.Equal(t, []string{"refund"}, store.Registry().Actions())

	require.NoError(t, os.WriteFile(path, []byte("guides: [oops"), 0o600))
	_, err = reloadGuides(cfg, store)
	require.Error(t, err)
	require.Equal(t, []string{"refund"}, store.Registry().Actions(), "failed reload must keep the active registry")
}

func TestGuidesAutoReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guides: {}\n"), 0o600))

	cfg := &config.Config{}
	cfg.Guides.File = path
	cfg.Guides.AutoReload.Enabled = true
	cfg.Guides.AutoReload.DebounceMs = 20

	store := guides.NewStore(guides.Builtin())
	closer, err := installGuidesAutoReload(cfg, store, nil, zap.NewNop(), &sync.Mutex{})
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer func() { _ = closer.Close() }()

	require.NoError(t, os.WriteFile(path, []byte(refundGuides), 0o600))
	require.Eventually(t, func() bool {
		return strings.Join(store.Registry().Actions(), ",") == "refund"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReloadSignalHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(refundGuides), 0o600))
	cfg := &config.Config{}
	cfg.Guides.File = path

	store := guides.NewStore(guides.Builtin())
	stop := installReloadSignalHandler(cfg, store, nil, zap.NewNop(), &sync.Mutex{})
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	require.Eventually(t, func() bool {
		return strings.Join(store.Registry().Actions(), ",") == "refund"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestGuidesAutoReload_Disabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.Guides.File = "/nonexistent/guides.yaml"
	closer, err := installGuidesAutoReload(cfg, guides.NewStore(guides.Builtin()), nil, zap.NewNop(), &sync.Mutex{})
	require.NoError(t, err)
	require.Nil(t, closer)
}

func TestWritePIDFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.PidFile = filepath.Join(t.TempDir(), "run", "sts.pid")

	c, err := writePIDFile(cfg)
	require.NoError(t, err)
	b, err := os.ReadFile(cfg.Server.PidFile)
	require.NoError(t, err)
	require.NotEmpty(t, strings.TrimSpace(string(b)))

	require.NoError(t, c.Close())
	_, err = os.Stat(cfg.Server.PidFile)
	require.True(t, os.IsNotExist(err))
}

func TestOpenAccessLogger(t *testing.T) {
	cfg := &config.Config{}
	l, c, _, err := openAccessLogger(cfg)
	require.NoError(t, err)
	require.Nil(t, l)
	require.Nil(t, c)

	cfg.Logging.AccessLog = true
	cfg.Logging.AccessLogPath = filepath.Join(t.TempDir(), "logs", "access.log")
	l, c, color, err := openAccessLogger(cfg)
	require.NoError(t, err)
	require.False(t, color)
	l.Println("hello")
	require.NoError(t, c.Close())
	b, err := os.ReadFile(cfg.Logging.AccessLogPath)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(b))
}
