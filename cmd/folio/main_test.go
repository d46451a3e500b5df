package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"folio/internal/catalog"
	"folio/internal/config"
	"folio/internal/daemon"
	"folio/internal/ipc"
	"folio/internal/logging"
	"folio/internal/notifications"
	"folio/internal/pipeline"
	"folio/internal/quota"
	"folio/internal/scheduler"
	"folio/internal/stage"
	"folio/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *catalog.Store
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

type idleHandler struct {
	stg catalog.Stage
}

func (h idleHandler) CanProcess(item *catalog.Item) bool {
	return item != nil && catalog.StatusAcceptableForStage(item.Status, h.stg)
}

func (h idleHandler) Process(context.Context, *catalog.Item) error { return nil }

func (h idleHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(h.stg))
}

type fixedProvider struct{}

func (fixedProvider) QueryLimits(context.Context) (quota.Snapshot, error) {
	return quota.Snapshot{Remaining: 7, Limit: 10}, nil
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	sched := scheduler.New(cfg, store, logger)
	gate := quota.New(cfg, fixedProvider{}, store, sched, logger)
	mgr := pipeline.NewWithDependencies(cfg, store, sched, gate, notifications.NewService(cfg), logger)
	mgr.ConfigureHandlers(pipeline.StageSet{
		Detail:   idleHandler{stg: catalog.StageDetail},
		Search:   idleHandler{stg: catalog.StageSearch},
		Download: idleHandler{stg: catalog.StageDownload},
		Upload:   idleHandler{stg: catalog.StageUpload},
	})

	d, err := daemon.New(cfg, store, logger, mgr, "")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(cfg.Paths.LogDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	time.Sleep(50 * time.Millisecond)

	env := &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return env
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal test config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got %q", want, output)
	}
}
