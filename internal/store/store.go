// Package store accumulates decoded telemetry frames into ordered
// per-quantity time series and serves consistent snapshots to readers.
package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/CarletonURocketry/ground-station/internal/frame"
	"github.com/CarletonURocketry/ground-station/internal/units"
)

// ErrStaleFrame marks a frame whose mission time is older than the
// newest recorded time for its quantity by more than the reorder window.
// The frame is dropped; the snapshot is unchanged.
var ErrStaleFrame = errors.New("store: frame outside reorder window")

// Quantity names one measured time series.
type Quantity string

const (
	QuantityGNSS        Quantity = "gnss"
	QuantityAltitude    Quantity = "altitude"
	QuantityPressure    Quantity = "pressure"
	QuantityTemperature Quantity = "temperature"
	QuantityHumidity    Quantity = "humidity"
)

const (
	// DefaultHistoryDepth bounds each quantity's retained samples.
	DefaultHistoryDepth = 512
	// DefaultReorderWindow is the out-of-order tolerance in mission-time
	// milliseconds. Radio links reorder bursts by a few packets; anything
	// older than this is stale data from a restarted source.
	DefaultReorderWindow = 5000
)

// Options tunes a Store. Zero values take the defaults above.
type Options struct {
	HistoryDepth  int
	ReorderWindow uint32
}

// Sample is one timestamped reading. GNSS samples carry two values
// (latitude, longitude); every other quantity carries one.
type Sample struct {
	MissionTime uint32
	Values      []float64
}

type timeline struct {
	samples []Sample
}

// Store is the in-memory telemetry state for one mission session. Apply
// is atomic with respect to Snapshot: readers never observe a partially
// applied frame.
type Store struct {
	mu            sync.RWMutex
	rocket        string
	historyDepth  int
	reorderWindow uint32

	lastMissionTime uint32
	status          frame.StatusPayload
	haveStatus      bool
	series          map[Quantity]*timeline
}

func New(rocket string, opts Options) *Store {
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = DefaultHistoryDepth
	}
	if opts.ReorderWindow == 0 {
		opts.ReorderWindow = DefaultReorderWindow
	}
	return &Store{
		rocket:        rocket,
		historyDepth:  opts.HistoryDepth,
		reorderWindow: opts.ReorderWindow,
		series:        make(map[Quantity]*timeline),
	}
}

// Apply folds one decoded frame into the store. Frames older than the
// newest sample of their quantity are sort-inserted when inside the
// reorder window and rejected with ErrStaleFrame when outside it.
func (s *Store) Apply(f frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch p := f.Payload.(type) {
	case frame.StatusPayload:
		s.status = p
		s.haveStatus = true
	case frame.GNSSPayload:
		if err := s.insert(QuantityGNSS, f.MissionTime, p.LatitudeDegrees(), p.LongitudeDegrees()); err != nil {
			return err
		}
	case frame.AltitudePayload:
		if err := s.insert(QuantityAltitude, f.MissionTime, units.MetresToFeet(p.Metres())); err != nil {
			return err
		}
	case frame.PressurePayload:
		if err := s.insert(QuantityPressure, f.MissionTime, float64(p.Pascals)); err != nil {
			return err
		}
	case frame.TemperaturePayload:
		if err := s.insert(QuantityTemperature, f.MissionTime, p.Celsius()); err != nil {
			return err
		}
	case frame.HumidityPayload:
		if err := s.insert(QuantityHumidity, f.MissionTime, p.Percentage()); err != nil {
			return err
		}
	case frame.MissionTimePayload:
		// Heartbeat: only the clock advances.
	}
	if f.MissionTime > s.lastMissionTime {
		s.lastMissionTime = f.MissionTime
	}
	return nil
}

func (s *Store) insert(q Quantity, t uint32, values ...float64) error {
	tl := s.series[q]
	if tl == nil {
		tl = &timeline{}
		s.series[q] = tl
	}
	sample := Sample{MissionTime: t, Values: values}

	n := len(tl.samples)
	if n == 0 || t >= tl.samples[n-1].MissionTime {
		tl.samples = append(tl.samples, sample)
	} else {
		newest := tl.samples[n-1].MissionTime
		if newest-t > s.reorderWindow {
			return ErrStaleFrame
		}
		// Inside the window: place at sorted position. An equal timestamp
		// lands after the existing sample, never over it.
		i := sort.Search(n, func(i int) bool { return tl.samples[i].MissionTime > t })
		tl.samples = append(tl.samples, Sample{})
		copy(tl.samples[i+1:], tl.samples[i:])
		tl.samples[i] = sample
	}
	if len(tl.samples) > s.historyDepth {
		drop := len(tl.samples) - s.historyDepth
		tl.samples = append(tl.samples[:0], tl.samples[drop:]...)
	}
	return nil
}

// Latest returns the newest sample for a quantity.
func (s *Store) Latest(q Quantity) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tl := s.series[q]
	if tl == nil || len(tl.samples) == 0 {
		return Sample{}, false
	}
	last := tl.samples[len(tl.samples)-1]
	out := Sample{MissionTime: last.MissionTime, Values: append([]float64{}, last.Values...)}
	return out, true
}

// LastMissionTime returns the newest mission time seen on any frame.
func (s *Store) LastMissionTime() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMissionTime
}

// Snapshot returns an immutable copy of the current state in the wire
// schema. The copy shares nothing with the store's internals.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Rocket: s.rocket,
		Telemetry: Telemetry{
			LastMissionTime: s.lastMissionTime,
		},
	}
	snap.Status.Rocket = RocketStatus{
		DeploymentState: frame.DeploymentDNE.String(),
	}
	if s.haveStatus {
		snap.Status.Rocket = RocketStatus{
			DeploymentState: s.status.DeploymentState.String(),
			KX134State:      s.status.KX134State.String(),
			AltimeterState:  s.status.AltimeterState.String(),
			IMUState:        s.status.IMUState.String(),
			SDCardState:     s.status.SDCardState.String(),
			BlocksRecorded:  s.status.BlocksRecorded,
			CheckoutsMissed: s.status.CheckoutsMissed,
		}
	}

	if tl := s.series[QuantityGNSS]; tl != nil {
		g := &GNSSSeries{}
		for _, smp := range tl.samples {
			g.Latitude = append(g.Latitude, smp.Values[0])
			g.Longitude = append(g.Longitude, smp.Values[1])
		}
		snap.Telemetry.GNSS = g
	}
	snap.Telemetry.Altitude = scalarSeries(s.series[QuantityAltitude], func(v []float64) *AltitudeSeries {
		return &AltitudeSeries{Feet: v}
	})
	snap.Telemetry.Pressure = scalarSeries(s.series[QuantityPressure], func(v []float64) *PressureSeries {
		return &PressureSeries{Pascals: v}
	})
	snap.Telemetry.Temperature = scalarSeries(s.series[QuantityTemperature], func(v []float64) *TemperatureSeries {
		return &TemperatureSeries{Celsius: v}
	})
	snap.Telemetry.Humidity = scalarSeries(s.series[QuantityHumidity], func(v []float64) *HumiditySeries {
		return &HumiditySeries{Percentage: v}
	})
	return snap
}

func scalarSeries[T any](tl *timeline, build func([]float64) *T) *T {
	if tl == nil || len(tl.samples) == 0 {
		return nil
	}
	out := make([]float64, len(tl.samples))
	for i, smp := range tl.samples {
		out[i] = smp.Values[0]
	}
	return build(out)
}
