package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/CarletonURocketry/ground-station/internal/frame"
	pebblestore "github.com/CarletonURocketry/ground-station/internal/storage/pebble"
)

type sliceIterator [][]byte

func (s sliceIterator) Iterate(fn func(raw []byte) error) error {
	for _, raw := range s {
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db, nil)
}

func pressureBytes(t uint32, pa uint32) []byte {
	return frame.Encode(frame.Frame{
		Type:        frame.TypePressure,
		MissionTime: t,
		Payload:     frame.PressurePayload{Pascals: pa},
	})
}

func TestImportAndReplay(t *testing.T) {
	lib := newTestLibrary(t)
	src := sliceIterator{
		pressureBytes(100, 101325),
		pressureBytes(200, 101200),
		pressureBytes(300, 101100),
	}

	meta, err := lib.Import(context.Background(), "flight-1", src)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if meta.Frames != 3 || meta.FirstMissionTime != 100 || meta.LastMissionTime != 300 {
		t.Fatalf("meta = %+v", meta)
	}

	replay, err := lib.OpenReplay("flight-1")
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	defer replay.Close()
	for i, want := range src {
		got, err := replay.Next()
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d mismatch", i)
		}
	}
	if _, err := replay.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestImportSkipsUndecodableRecords(t *testing.T) {
	lib := newTestLibrary(t)
	corrupt := pressureBytes(150, 1)
	corrupt[7] ^= 0xFF
	src := sliceIterator{pressureBytes(100, 2), corrupt, pressureBytes(200, 3)}

	meta, err := lib.Import(context.Background(), "flight-2", src)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if meta.Frames != 2 || meta.DecodeFaults != 1 {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestImportRejectsDuplicate(t *testing.T) {
	lib := newTestLibrary(t)
	if _, err := lib.Import(context.Background(), "dup", sliceIterator{}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := lib.Import(context.Background(), "dup", sliceIterator{}); !errors.Is(err, ErrMissionExists) {
		t.Fatalf("expected ErrMissionExists, got %v", err)
	}
}

func TestBadMissionName(t *testing.T) {
	lib := newTestLibrary(t)
	for _, name := range []string{"", "a/b"} {
		if _, err := lib.Import(context.Background(), name, sliceIterator{}); !errors.Is(err, ErrBadMissionName) {
			t.Fatalf("name %q: expected ErrBadMissionName, got %v", name, err)
		}
	}
}

func TestListAndDelete(t *testing.T) {
	lib := newTestLibrary(t)
	for _, name := range []string{"bravo", "alpha"} {
		if _, err := lib.Import(context.Background(), name, sliceIterator{pressureBytes(1, 1)}); err != nil {
			t.Fatalf("import %s: %v", name, err)
		}
	}
	missions, err := lib.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(missions) != 2 || missions[0].Name != "alpha" || missions[1].Name != "bravo" {
		t.Fatalf("missions = %+v", missions)
	}

	if err := lib.Delete("alpha"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := lib.Get("alpha"); !errors.Is(err, ErrMissionNotFound) {
		t.Fatalf("expected ErrMissionNotFound, got %v", err)
	}
	if err := lib.Delete("alpha"); !errors.Is(err, ErrMissionNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	// bravo's frames survive the range delete.
	replay, err := lib.OpenReplay("bravo")
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	defer replay.Close()
	if _, err := replay.Next(); err != nil {
		t.Fatalf("bravo frame lost: %v", err)
	}
}

func TestPacedReaderDeliversStream(t *testing.T) {
	lib := newTestLibrary(t)
	src := sliceIterator{pressureBytes(10, 5), pressureBytes(20, 6)}
	if _, err := lib.Import(context.Background(), "paced", src); err != nil {
		t.Fatalf("import: %v", err)
	}
	replay, err := lib.OpenReplay("paced")
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	r := NewPacedReader(replay, 0) // pacing off in tests
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	want := append(append([]byte{}, src[0]...), src[1]...)
	if !bytes.Equal(got, want) {
		t.Fatalf("stream mismatch: %d vs %d bytes", len(got), len(want))
	}
}

func TestPacedReaderPauseResume(t *testing.T) {
	lib := newTestLibrary(t)
	src := sliceIterator{pressureBytes(10, 5), pressureBytes(20, 6)}
	if _, err := lib.Import(context.Background(), "paused", src); err != nil {
		t.Fatalf("import: %v", err)
	}
	replay, err := lib.OpenReplay("paused")
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	r := NewPacedReader(replay, 0)
	defer r.Close()
	r.Pause()

	read := make(chan error, 1)
	go func() {
		buf := make([]byte, len(src[0]))
		_, err := io.ReadFull(r, buf)
		read <- err
	}()

	select {
	case err := <-read:
		t.Fatalf("read finished while paused: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	r.Resume()
	select {
	case err := <-read:
		if err != nil {
			t.Fatalf("read after resume: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read never resumed")
	}
}

func TestPacedReaderCloseUnblocksPausedRead(t *testing.T) {
	lib := newTestLibrary(t)
	if _, err := lib.Import(context.Background(), "closing", sliceIterator{pressureBytes(10, 5)}); err != nil {
		t.Fatalf("import: %v", err)
	}
	replay, err := lib.OpenReplay("closing")
	if err != nil {
		t.Fatalf("open replay: %v", err)
	}
	r := NewPacedReader(replay, 0)
	r.Pause()

	read := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 16))
		read <- err
	}()
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-read:
		if err != io.EOF {
			t.Fatalf("expected EOF after close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read never unblocked")
	}
}
