// Package archive is the mission library: recovered SD card logs are
// imported into a Pebble-backed store where they can be listed, deleted,
// and replayed through the normal ingest path.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/CarletonURocketry/ground-station/internal/frame"
	pebblestore "github.com/CarletonURocketry/ground-station/internal/storage/pebble"
	"github.com/CarletonURocketry/ground-station/pkg/log"
)

var (
	ErrMissionExists   = errors.New("archive: mission already exists")
	ErrMissionNotFound = errors.New("archive: mission not found")
	ErrBadMissionName  = errors.New("archive: mission name must be non-empty without '/'")
)

// importBatchFrames bounds one commit during import so a long flight does
// not build a single giant batch.
const importBatchFrames = 1024

// MissionMeta describes one archived flight.
type MissionMeta struct {
	Name             string    `json:"name"`
	ImportedAt       time.Time `json:"imported_at"`
	Frames           uint64    `json:"frames"`
	FirstMissionTime uint32    `json:"first_mission_time"`
	LastMissionTime  uint32    `json:"last_mission_time"`
	// DecodeFaults counts records on the card that did not decode as
	// frames and were left out of the archive.
	DecodeFaults uint64 `json:"decode_faults"`
}

// FrameIterator yields raw frame records in log order. missionfs.Session
// satisfies it.
type FrameIterator interface {
	Iterate(fn func(raw []byte) error) error
}

// Library is the mission archive.
type Library struct {
	db     *pebblestore.DB
	logger log.Logger
}

func New(db *pebblestore.DB, logger log.Logger) *Library {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Library{db: db, logger: logger}
}

func validName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return ErrBadMissionName
	}
	return nil
}

// Import copies every decodable frame from src into the archive under
// the given mission name. Records that fail to decode are counted and
// skipped; the import succeeds as long as the source itself is readable.
func (l *Library) Import(ctx context.Context, name string, src FrameIterator) (MissionMeta, error) {
	if err := validName(name); err != nil {
		return MissionMeta{}, err
	}
	if _, err := l.db.Get(keyMeta(name)); err == nil {
		return MissionMeta{}, ErrMissionExists
	} else if !pebblestore.IsNotFound(err) {
		return MissionMeta{}, fmt.Errorf("archive: probe mission %q: %w", name, err)
	}

	meta := MissionMeta{Name: name, ImportedAt: time.Now().UTC()}
	batch := l.db.NewBatch()
	defer func() { batch.Close() }()

	err := src.Iterate(func(raw []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, _, err := frame.Decode(raw, 0)
		if err != nil {
			meta.DecodeFaults++
			l.logger.Warn("skipping undecodable record", log.Err(err))
			return nil
		}
		if meta.Frames == 0 {
			meta.FirstMissionTime = f.MissionTime
		}
		if f.MissionTime > meta.LastMissionTime {
			meta.LastMissionTime = f.MissionTime
		}
		if err := batch.Set(keyFrame(name, meta.Frames), raw, nil); err != nil {
			return err
		}
		meta.Frames++
		if int(batch.Count()) >= importBatchFrames {
			if err := l.db.CommitBatch(ctx, batch); err != nil {
				return err
			}
			batch.Close()
			batch = l.db.NewBatch()
		}
		return nil
	})
	if err != nil {
		return MissionMeta{}, fmt.Errorf("archive: import %q: %w", name, err)
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return MissionMeta{}, err
	}
	if err := batch.Set(keyMeta(name), metaBytes, nil); err != nil {
		return MissionMeta{}, err
	}
	if err := l.db.CommitBatch(ctx, batch); err != nil {
		return MissionMeta{}, fmt.Errorf("archive: commit %q: %w", name, err)
	}
	l.logger.Info("mission imported",
		log.Str("mission", name),
		log.Uint64("frames", meta.Frames),
		log.Uint64("decode_faults", meta.DecodeFaults))
	return meta, nil
}

// Get returns one mission's metadata.
func (l *Library) Get(name string) (MissionMeta, error) {
	if err := validName(name); err != nil {
		return MissionMeta{}, err
	}
	raw, err := l.db.Get(keyMeta(name))
	if pebblestore.IsNotFound(err) {
		return MissionMeta{}, ErrMissionNotFound
	}
	if err != nil {
		return MissionMeta{}, err
	}
	var meta MissionMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return MissionMeta{}, fmt.Errorf("archive: corrupt metadata for %q: %w", name, err)
	}
	return meta, nil
}

// List returns metadata for every archived mission, ordered by name.
func (l *Library) List() ([]MissionMeta, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: missionPrefix,
		UpperBound: upperBound(append([]byte{}, missionPrefix...)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []MissionMeta
	for iter.First(); iter.Valid(); iter.Next() {
		if !strings.HasSuffix(string(iter.Key()), string(metaSuffix)) {
			continue
		}
		var meta MissionMeta
		if err := json.Unmarshal(iter.Value(), &meta); err != nil {
			l.logger.Warn("skipping corrupt mission metadata", log.Str("key", string(iter.Key())))
			continue
		}
		out = append(out, meta)
	}
	return out, iter.Error()
}

// Delete removes a mission and all its frames.
func (l *Library) Delete(name string) error {
	if _, err := l.Get(name); err != nil {
		return err
	}
	lo, hi := keyMissionRange(name)
	if err := l.db.DeleteRange(lo, hi); err != nil {
		return fmt.Errorf("archive: delete %q: %w", name, err)
	}
	return nil
}
