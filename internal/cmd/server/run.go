package serverrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/CarletonURocketry/ground-station/internal/alerts"
	"github.com/CarletonURocketry/ground-station/internal/archive"
	cfgpkg "github.com/CarletonURocketry/ground-station/internal/config"
	"github.com/CarletonURocketry/ground-station/internal/hub"
	"github.com/CarletonURocketry/ground-station/internal/ingest"
	"github.com/CarletonURocketry/ground-station/internal/metrics"
	"github.com/CarletonURocketry/ground-station/internal/missionfs"
	httpserver "github.com/CarletonURocketry/ground-station/internal/server/http"
	"github.com/CarletonURocketry/ground-station/internal/store"
	pebblestore "github.com/CarletonURocketry/ground-station/internal/storage/pebble"
	logpkg "github.com/CarletonURocketry/ground-station/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// ReplayMission feeds an archived mission through the ingest path
	// instead of the configured serial device.
	ReplayMission string
	// ReplaySpeed scales recorded mission-time gaps; 0 replays without
	// pacing.
	ReplaySpeed float64
}

// Run starts the ground station and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers
	// without signal awareness still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	logpkg.RedirectStdLog(logger)
	metrics.Init()

	logger.Info("starting ground station",
		logpkg.Str("rocket", cfg.RocketName),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("serial", cfg.SerialDevice),
		logpkg.Str("mission_image", cfg.MissionImage),
		logpkg.Str("missions_dir", cfg.MissionsDir))

	st := store.New(cfg.RocketName, store.Options{
		HistoryDepth:  cfg.HistoryDepth,
		ReorderWindow: cfg.ReorderWindowMS,
	})

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: cfg.MissionsDir,
		Fsync:   pebblestore.FsyncModeAlways,
		Metrics: metrics.Storage{},
	})
	if err != nil {
		return fmt.Errorf("open mission library: %w", err)
	}
	defer db.Close()
	library := archive.New(db, logger.With(logpkg.Component("archive")))

	source, paced, closeSource, err := openSource(opts, library)
	if err != nil {
		return err
	}
	if closeSource != nil {
		defer func() { _ = closeSource() }()
	}

	// Live commands have no uplink transport here; they are logged for
	// the operator console and the radio operator acts on them. During a
	// replay the command channel drives playback instead.
	commandSink := hub.CommandSinkFunc(func(_ context.Context, subscriber uint64, text string) error {
		logger.Info("command received",
			logpkg.Uint64("subscriber", subscriber),
			logpkg.Str("command", text))
		if paced != nil {
			applyReplayCommand(paced, text)
		}
		return nil
	})

	h := hub.New(hub.Options{
		Logger:     logger.With(logpkg.Component("hub")),
		Metrics:    metrics.Hub{},
		SendBuffer: cfg.SubscriberBuffer,
		Snapshot: func() []byte {
			payload, err := json.Marshal(st.Snapshot())
			if err != nil {
				return []byte("{}")
			}
			return payload
		},
		Commands: commandSink,
	})
	defer h.Close()

	var alertEngine *alerts.Engine
	if len(cfg.Alerts) > 0 {
		alertEngine, err = alerts.New(cfg.Alerts, logger.With(logpkg.Component("alerts")), nil)
		if err != nil {
			return err
		}
	}

	// Durable capture is optional: without an SD image the station still
	// serves the live stream.
	var session *missionfs.Session
	if cfg.MissionImage != "" {
		dev, err := missionfs.OpenFile(cfg.MissionImage)
		if err != nil {
			return fmt.Errorf("open mission image: %w", err)
		}
		defer dev.Close()
		session, err = missionfs.Mount(dev, missionfs.MountOptions{
			Logger:  logger.With(logpkg.Component("missionfs")),
			Metrics: metrics.MissionFS{},
		})
		if err != nil {
			return fmt.Errorf("mount mission image: %w", err)
		}
		defer session.Close()
	}

	var wg sync.WaitGroup

	if source != nil {
		pumpOpts := ingest.Options{
			Logger:    logger.With(logpkg.Component("ingest")),
			Metrics:   metrics.Ingest{},
			Store:     st,
			Publisher: h,
		}
		if session != nil {
			pumpOpts.Archive = session
		}
		if alertEngine != nil {
			pumpOpts.Observer = alertEngine
		}
		pump, err := ingest.New(pumpOpts)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pump.Run(sctx, source); err != nil && sctx.Err() == nil {
				logger.Error("ingest stopped", logpkg.Err(err))
			}
		}()
	}

	hsrv := httpserver.New(httpserver.Options{
		Hub:     h,
		Library: library,
		Logger:  logger.With(logpkg.Component("http")),
		Snapshot: func() []byte {
			payload, err := json.Marshal(st.Snapshot())
			if err != nil {
				return []byte("{}")
			}
			return payload
		},
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			logger.Error("http server stopped", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Unblock the pump's source read first, then drain the servers.
	// Closing twice on the deferred path is harmless.
	if closeSource != nil {
		_ = closeSource()
	}
	hsrv.Close()
	wg.Wait()
	return nil
}

// openSource picks the byte source: an archived mission replay when
// requested, otherwise the configured serial device, otherwise none.
// The *PacedReader is non-nil only for replays.
func openSource(opts Options, library *archive.Library) (io.Reader, *archive.PacedReader, func() error, error) {
	if opts.ReplayMission != "" {
		replay, err := library.OpenReplay(opts.ReplayMission)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open replay: %w", err)
		}
		paced := archive.NewPacedReader(replay, opts.ReplaySpeed)
		return paced, paced, paced.Close, nil
	}
	if opts.Config.SerialDevice != "" {
		f, err := os.Open(opts.Config.SerialDevice)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open serial device: %w", err)
		}
		return f, nil, f.Close, nil
	}
	return nil, nil, nil, nil
}

// applyReplayCommand interprets the playback subset of the command
// vocabulary: "pause", "resume" (or "play") and "speed <factor>".
// Anything else is left for the operator log.
func applyReplayCommand(paced *archive.PacedReader, text string) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "pause":
		paced.Pause()
	case "resume", "play":
		paced.Resume()
	case "speed":
		if len(fields) == 2 {
			if v, err := strconv.ParseFloat(fields[1], 64); err == nil && v >= 0 {
				paced.SetSpeed(v)
			}
		}
	}
}
