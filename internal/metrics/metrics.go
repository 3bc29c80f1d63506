// Package metrics registers the Prometheus collectors for the ground
// station and provides the adapter types that plug them into the
// component metric hooks.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingest metrics
	FramesDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_frames_decoded_total",
		Help: "Total number of telemetry frames decoded from the byte stream",
	})
	DecodeFaultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ground_station_decode_faults_total",
		Help: "Total number of decode faults by kind",
	}, []string{"kind"})
	StaleFramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_stale_frames_total",
		Help: "Total number of frames rejected outside the reorder window",
	})
	PersistFaultsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_persist_faults_total",
		Help: "Total number of mission log append failures",
	})

	// Mission log metrics
	FramesAppendedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_log_frames_appended_total",
		Help: "Total number of raw frames appended to the mission log",
	})
	BlocksSealedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_log_blocks_sealed_total",
		Help: "Total number of mission log blocks sealed and synced",
	})
	BlocksSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_log_blocks_skipped_total",
		Help: "Total number of corrupt mission log blocks skipped on replay",
	})

	// Hub metrics
	PublishesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_publishes_total",
		Help: "Total number of snapshot publishes",
	})
	SubscribersGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ground_station_subscribers",
		Help: "Current number of live subscribers",
	})
	SubscribersDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_subscribers_dropped_total",
		Help: "Total number of subscribers dropped for stalling",
	})

	// Mission library storage metrics
	StorageCommitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ground_station_storage_commit_seconds",
		Help:    "Duration of mission library batch commits in seconds",
		Buckets: prometheus.DefBuckets,
	})
	StorageReadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ground_station_storage_read_bytes_total",
		Help: "Total bytes read from the mission library",
	})

	registerOnce sync.Once
)

// Init registers all Prometheus collectors used by the ground station.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			FramesDecodedTotal,
			DecodeFaultsTotal,
			StaleFramesTotal,
			PersistFaultsTotal,
			FramesAppendedTotal,
			BlocksSealedTotal,
			BlocksSkippedTotal,
			PublishesTotal,
			SubscribersGauge,
			SubscribersDroppedTotal,
			StorageCommitSeconds,
			StorageReadBytes,
		)
	})
}

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// Ingest satisfies the ingest pump's metrics hook.
type Ingest struct{}

func (Ingest) FrameDecoded()          { FramesDecodedTotal.Inc() }
func (Ingest) DecodeFault(kind string) { DecodeFaultsTotal.WithLabelValues(kind).Inc() }
func (Ingest) StaleFrame()            { StaleFramesTotal.Inc() }
func (Ingest) PersistFault()          { PersistFaultsTotal.Inc() }

// MissionFS satisfies the mission filesystem's metrics hook.
type MissionFS struct{}

func (MissionFS) FrameAppended() { FramesAppendedTotal.Inc() }
func (MissionFS) BlockSealed()   { BlocksSealedTotal.Inc() }
func (MissionFS) BlockSkipped()  { BlocksSkippedTotal.Inc() }

// Hub satisfies the broadcast hub's metrics hook.
type Hub struct{}

func (Hub) Published(subscribers int) {
	PublishesTotal.Inc()
	SubscribersGauge.Set(float64(subscribers))
}
func (Hub) SubscriberDropped() { SubscribersDroppedTotal.Inc() }

// Storage satisfies the pebble wrapper's MetricsHook.
type Storage struct{}

func (Storage) ObserveRead(_ time.Duration, bytes int) {
	StorageReadBytes.Add(float64(bytes))
}
func (Storage) ObserveBatchCommit(elapsed time.Duration, _ int, _ int) {
	StorageCommitSeconds.Observe(elapsed.Seconds())
}
