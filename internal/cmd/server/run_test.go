package serverrun

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/CarletonURocketry/ground-station/internal/config"
	logpkg "github.com/CarletonURocketry/ground-station/pkg/log"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MissionsDir = t.TempDir()
	return cfg
}

func TestRunStartsAndShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	cfg := testConfig(t)
	go func() {
		done <- Run(ctx, Options{Config: cfg, Logger: logpkg.NewNop()})
	}()

	// Give the servers a moment to come up, then ask for shutdown.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not shut down")
	}
}

func TestRunRejectsUnknownReplayMission(t *testing.T) {
	err := Run(context.Background(), Options{
		Config:        testConfig(t),
		Logger:        logpkg.NewNop(),
		ReplayMission: "no-such-mission",
	})
	if err == nil {
		t.Fatal("expected error for unknown replay mission")
	}
}

func TestRunRejectsMissingSerialDevice(t *testing.T) {
	cfg := testConfig(t)
	cfg.SerialDevice = "/dev/does-not-exist-telemetry"

	err := Run(context.Background(), Options{Config: cfg, Logger: logpkg.NewNop()})
	if err == nil {
		t.Fatal("expected error for missing serial device")
	}
}
