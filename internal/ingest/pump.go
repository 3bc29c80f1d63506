// Package ingest drives a raw byte source through the frame codec and
// feeds the results to the mission log, the telemetry store, and the
// broadcast hub.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/CarletonURocketry/ground-station/internal/frame"
	"github.com/CarletonURocketry/ground-station/internal/store"
	"github.com/CarletonURocketry/ground-station/pkg/log"
)

// Archive persists raw frame bytes. missionfs.Session satisfies it.
type Archive interface {
	Append(raw []byte) error
}

// Publisher receives one serialized snapshot per accepted frame.
type Publisher interface {
	Publish(payload []byte)
}

// FrameObserver sees every accepted decoded frame. The alert engine
// attaches here.
type FrameObserver interface {
	Observe(f frame.Frame)
}

// Metrics receives ingest observations; the default discards them.
type Metrics interface {
	FrameDecoded()
	DecodeFault(kind string)
	StaleFrame()
	PersistFault()
}

type noopMetrics struct{}

func (noopMetrics) FrameDecoded()       {}
func (noopMetrics) DecodeFault(string)  {}
func (noopMetrics) StaleFrame()         {}
func (noopMetrics) PersistFault()       {}

const readChunk = 4096

// Options wires a Pump. Store is required; Archive and Publisher are
// optional so replay and headless capture share the same loop.
type Options struct {
	Logger    log.Logger
	Metrics   Metrics
	Archive   Archive
	Store     *store.Store
	Publisher Publisher
	Observer  FrameObserver
}

// Pump owns the decode loop for one byte source. One pump per source;
// decode and append calls are serialized by construction.
type Pump struct {
	logger    log.Logger
	metrics   Metrics
	archive   Archive
	store     *store.Store
	publisher Publisher
	observer  FrameObserver

	buf []byte
}

func New(opts Options) (*Pump, error) {
	if opts.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	return &Pump{
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		archive:   opts.Archive,
		store:     opts.Store,
		publisher: opts.Publisher,
		observer:  opts.Observer,
	}, nil
}

// Run reads src until EOF or context cancellation, decoding every frame
// it can recover. Corrupt stretches are skipped by resynchronizing on
// the frame marker; persistence faults are logged and ingestion
// continues so the live stream never stalls on the disk.
func (p *Pump) Run(ctx context.Context, src io.Reader) error {
	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.Read(chunk)
		if n > 0 {
			p.buf = append(p.buf, chunk[:n]...)
			p.drain()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("ingest: read source: %w", err)
		}
	}
}

// drain decodes frames from the buffer until it runs dry or holds only
// an incomplete tail, which is kept for the next read.
func (p *Pump) drain() {
	off := 0
	for off < len(p.buf) {
		f, n, err := frame.Decode(p.buf, off)
		switch {
		case err == nil:
			p.handleFrame(f, p.buf[off:off+n])
			off += n
		case errors.Is(err, frame.ErrIncomplete):
			// Wait for more bytes without discarding the partial frame.
			p.buf = append(p.buf[:0], p.buf[off:]...)
			return
		case errors.Is(err, frame.ErrDesync):
			p.metrics.DecodeFault("desync")
			off = p.resync(off + 1)
		default:
			// Checksum, length, type, or payload fault: the marker at off
			// started a frame we cannot trust. Skip past it and rescan.
			p.metrics.DecodeFault(faultKind(err))
			p.logger.Debug("dropping corrupt frame", log.Err(err))
			off = p.resync(off + 2)
		}
		if off < 0 {
			return
		}
	}
	p.buf = p.buf[:0]
}

// resync advances to the next frame marker at or after from. When none
// remains, the buffer is trimmed to a possible half-marker tail and -1
// is returned to stop the drain.
func (p *Pump) resync(from int) int {
	if from < len(p.buf) {
		if idx := frame.Resync(p.buf, from); idx >= 0 {
			return idx
		}
	}
	if n := len(p.buf); n > 0 && p.buf[n-1] == 0xAA {
		p.buf = append(p.buf[:0], 0xAA)
	} else {
		p.buf = p.buf[:0]
	}
	return -1
}

func (p *Pump) handleFrame(f frame.Frame, raw []byte) {
	p.metrics.FrameDecoded()

	if p.archive != nil {
		if err := p.archive.Append(raw); err != nil {
			// Durability is best-effort relative to live distribution.
			p.metrics.PersistFault()
			p.logger.Error("mission log append failed", log.Err(err))
		}
	}

	if err := p.store.Apply(f); err != nil {
		if errors.Is(err, store.ErrStaleFrame) {
			p.metrics.StaleFrame()
			p.logger.Debug("stale frame dropped",
				log.Str("type", f.Type.String()),
				log.Uint64("mission_time", uint64(f.MissionTime)))
			return
		}
		p.logger.Error("apply frame failed", log.Err(err))
		return
	}

	if p.observer != nil {
		p.observer.Observe(f)
	}

	if p.publisher == nil {
		return
	}
	payload, err := json.Marshal(p.store.Snapshot())
	if err != nil {
		p.logger.Error("serialize snapshot failed", log.Err(err))
		return
	}
	p.publisher.Publish(payload)
}

func faultKind(err error) string {
	switch {
	case errors.Is(err, frame.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, frame.ErrUnknownType):
		return "unknown_type"
	case errors.Is(err, frame.ErrFrameTooLarge):
		return "length"
	case errors.Is(err, frame.ErrMalformedPayload):
		return "malformed"
	default:
		return "other"
	}
}
