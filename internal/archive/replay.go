package archive

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/CarletonURocketry/ground-station/internal/frame"
)

// Replay walks one mission's frames in recorded order.
type Replay struct {
	iter  *pebble.Iterator
	first bool
}

// OpenReplay positions a replay at the first frame of a mission.
func (l *Library) OpenReplay(name string) (*Replay, error) {
	if _, err := l.Get(name); err != nil {
		return nil, err
	}
	lo, hi := keyFramePrefix(name)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	return &Replay{iter: iter, first: true}, nil
}

// Next returns the next raw frame, or io.EOF after the last one.
func (r *Replay) Next() ([]byte, error) {
	var ok bool
	if r.first {
		ok = r.iter.First()
		r.first = false
	} else {
		ok = r.iter.Next()
	}
	if !ok {
		if err := r.iter.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return append([]byte{}, r.iter.Value()...), nil
}

func (r *Replay) Close() error { return r.iter.Close() }

// PacedReader adapts a Replay into a byte source for the ingest pump,
// sleeping between frames to reproduce the recorded mission-time gaps.
// Speed scales the gaps: 2.0 replays twice as fast, 0 disables pacing.
// Pause, Resume and SetSpeed may be called from other goroutines while
// a Read is in flight.
type PacedReader struct {
	replay *Replay

	mu      sync.Mutex
	cond    *sync.Cond
	speed   float64
	paused  bool
	closed  bool
	lastMT  uint32
	haveMT  bool
	pending []byte
}

func NewPacedReader(replay *Replay, speed float64) *PacedReader {
	p := &PacedReader{replay: replay, speed: speed}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *PacedReader) Read(buf []byte) (int, error) {
	for len(p.pending) == 0 {
		raw, gap, err := p.nextFrame()
		if err != nil {
			return 0, err
		}
		if gap > 0 {
			time.Sleep(gap)
		}
		p.pending = raw
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// nextFrame blocks while paused, then advances the replay iterator and
// returns the frame plus the paced delay before it should be delivered.
func (p *PacedReader) nextFrame() ([]byte, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.paused && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, 0, io.EOF
	}
	raw, err := p.replay.Next()
	if err != nil {
		return nil, 0, err
	}
	var gap time.Duration
	if p.speed > 0 {
		if f, _, err := frame.Decode(raw, 0); err == nil {
			if p.haveMT && f.MissionTime > p.lastMT {
				recorded := time.Duration(f.MissionTime-p.lastMT) * time.Millisecond
				gap = time.Duration(float64(recorded) / p.speed)
			}
			p.lastMT = f.MissionTime
			p.haveMT = true
		}
	}
	return raw, gap, nil
}

// Pause holds delivery before the next frame; bytes of the current frame
// already handed to the pump still drain.
func (p *PacedReader) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

func (p *PacedReader) Resume() {
	p.mu.Lock()
	p.paused = false
	p.cond.Broadcast()
	p.mu.Unlock()
}

// SetSpeed changes the pacing factor for subsequent frames. 0 disables
// pacing entirely.
func (p *PacedReader) SetSpeed(speed float64) {
	p.mu.Lock()
	p.speed = speed
	p.mu.Unlock()
}

// Close releases the underlying iterator and unblocks a paused Read,
// which then reports io.EOF.
func (p *PacedReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	if err := p.replay.Close(); err != nil {
		return fmt.Errorf("archive: close replay: %w", err)
	}
	return nil
}
