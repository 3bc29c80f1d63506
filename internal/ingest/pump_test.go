package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/CarletonURocketry/ground-station/internal/frame"
	"github.com/CarletonURocketry/ground-station/internal/store"
)

type countingMetrics struct {
	decoded  int
	faults   map[string]int
	stale    int
	persist  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{faults: make(map[string]int)}
}

func (m *countingMetrics) FrameDecoded()          { m.decoded++ }
func (m *countingMetrics) DecodeFault(kind string) { m.faults[kind]++ }
func (m *countingMetrics) StaleFrame()            { m.stale++ }
func (m *countingMetrics) PersistFault()          { m.persist++ }

func (m *countingMetrics) totalFaults() int {
	n := 0
	for _, c := range m.faults {
		n += c
	}
	return n
}

type capturePublisher struct {
	payloads [][]byte
}

func (p *capturePublisher) Publish(payload []byte) {
	p.payloads = append(p.payloads, append([]byte{}, payload...))
}

type captureArchive struct {
	records [][]byte
	fail    error
}

func (a *captureArchive) Append(raw []byte) error {
	if a.fail != nil {
		return a.fail
	}
	a.records = append(a.records, append([]byte{}, raw...))
	return nil
}

func tempBytes(t uint32, centi int32) []byte {
	return frame.Encode(frame.Frame{
		Type:        frame.TypeTemperature,
		MissionTime: t,
		Payload:     frame.TemperaturePayload{CentiCelsius: centi},
	})
}

func runPump(t *testing.T, p *Pump, stream []byte) {
	t.Helper()
	if err := p.Run(context.Background(), bytes.NewReader(stream)); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestEndToEndTemperature(t *testing.T) {
	st := store.New("Hyperion", store.Options{})
	pub := &capturePublisher{}
	p, err := New(Options{Store: st, Publisher: pub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var stream []byte
	stream = append(stream, tempBytes(100, 2150)...)
	stream = append(stream, tempBytes(250, 2175)...)
	runPump(t, p, stream)

	snap := st.Snapshot()
	if want := []float64{21.50, 21.75}; !equalFloats(snap.Telemetry.Temperature.Celsius, want) {
		t.Fatalf("celsius = %v, want %v", snap.Telemetry.Temperature.Celsius, want)
	}
	if snap.Telemetry.LastMissionTime != 250 {
		t.Fatalf("last_mission_time = %d, want 250", snap.Telemetry.LastMissionTime)
	}
	if len(pub.payloads) != 2 {
		t.Fatalf("published %d snapshots, want 2", len(pub.payloads))
	}
	var decoded store.Snapshot
	if err := json.Unmarshal(pub.payloads[1], &decoded); err != nil {
		t.Fatalf("unmarshal published snapshot: %v", err)
	}
	if decoded.Telemetry.LastMissionTime != 250 {
		t.Fatalf("published last_mission_time = %d", decoded.Telemetry.LastMissionTime)
	}
}

func TestRecoversAroundCorruptFrame(t *testing.T) {
	st := store.New("test", store.Options{})
	m := newCountingMetrics()
	p, err := New(Options{Store: st, Metrics: m})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	corrupt := tempBytes(150, 9999)
	corrupt[7] ^= 0xFF // breaks the checksum

	var stream []byte
	stream = append(stream, tempBytes(100, 2150)...)
	stream = append(stream, corrupt...)
	stream = append(stream, tempBytes(250, 2175)...)
	runPump(t, p, stream)

	if m.decoded != 2 {
		t.Fatalf("decoded %d frames, want 2", m.decoded)
	}
	if m.totalFaults() != 1 {
		t.Fatalf("counted %d faults (%v), want 1", m.totalFaults(), m.faults)
	}
	if want := []float64{21.50, 21.75}; !equalFloats(st.Snapshot().Telemetry.Temperature.Celsius, want) {
		t.Fatalf("celsius = %v, want %v", st.Snapshot().Telemetry.Temperature.Celsius, want)
	}
}

func TestSkipsLeadingJunk(t *testing.T) {
	st := store.New("test", store.Options{})
	m := newCountingMetrics()
	p, err := New(Options{Store: st, Metrics: m})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	stream := append([]byte{0x00, 0xDE, 0xAD, 0xBE, 0xEF}, tempBytes(100, 2150)...)
	runPump(t, p, stream)
	if m.decoded != 1 {
		t.Fatalf("decoded %d frames, want 1", m.decoded)
	}
}

func TestIncompleteTailSurvivesReads(t *testing.T) {
	st := store.New("test", store.Options{})
	p, err := New(Options{Store: st})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw := tempBytes(100, 2150)
	// Feed the frame one byte at a time; iotest-style single-byte reads.
	runPump(t, p, raw[:0])
	for i := range raw {
		if err := p.Run(context.Background(), bytes.NewReader(raw[i:i+1])); err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
	}
	if _, ok := st.Latest(store.QuantityTemperature); !ok {
		t.Fatal("frame split across reads was never decoded")
	}
}

func TestArchiveReceivesRawFrames(t *testing.T) {
	st := store.New("test", store.Options{})
	ar := &captureArchive{}
	p, err := New(Options{Store: st, Archive: ar})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	raw := tempBytes(100, 2150)
	runPump(t, p, raw)
	if len(ar.records) != 1 || !bytes.Equal(ar.records[0], raw) {
		t.Fatalf("archive saw %d records", len(ar.records))
	}
}

func TestPersistFaultDoesNotStallIngest(t *testing.T) {
	st := store.New("test", store.Options{})
	m := newCountingMetrics()
	ar := &captureArchive{fail: errors.New("disk gone")}
	pub := &capturePublisher{}
	p, err := New(Options{Store: st, Archive: ar, Metrics: m, Publisher: pub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	runPump(t, p, tempBytes(100, 2150))
	if m.persist != 1 {
		t.Fatalf("persist faults = %d, want 1", m.persist)
	}
	if len(pub.payloads) != 1 {
		t.Fatal("live publish must continue without durability")
	}
}

func TestStaleFrameNotPublished(t *testing.T) {
	st := store.New("test", store.Options{ReorderWindow: 1000})
	m := newCountingMetrics()
	pub := &capturePublisher{}
	p, err := New(Options{Store: st, Metrics: m, Publisher: pub})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var stream []byte
	stream = append(stream, tempBytes(10000, 2150)...)
	stream = append(stream, tempBytes(100, 1111)...) // far outside the window
	runPump(t, p, stream)
	if m.stale != 1 {
		t.Fatalf("stale count = %d, want 1", m.stale)
	}
	if len(pub.payloads) != 1 {
		t.Fatalf("published %d snapshots, want 1", len(pub.payloads))
	}
}

type captureObserver struct {
	frames []frame.Frame
}

func (o *captureObserver) Observe(f frame.Frame) { o.frames = append(o.frames, f) }

func TestObserverSeesAcceptedFramesOnly(t *testing.T) {
	st := store.New("test", store.Options{ReorderWindow: 1000})
	obs := &captureObserver{}
	p, err := New(Options{Store: st, Observer: obs})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var stream []byte
	stream = append(stream, tempBytes(10000, 2150)...)
	stream = append(stream, tempBytes(100, 1111)...) // stale, not observed
	runPump(t, p, stream)
	if len(obs.frames) != 1 || obs.frames[0].MissionTime != 10000 {
		t.Fatalf("observer saw %+v", obs.frames)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := store.New("test", store.Options{})
	p, err := New(Options{Store: st})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx, bytes.NewReader(tempBytes(100, 2150))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func equalFloats(got, want []float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
