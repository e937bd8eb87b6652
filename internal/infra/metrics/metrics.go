// Package metrics exposes playback counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/disgoorg/snowflake/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "foldatunez"

// Metrics holds the collectors. Each instance has its own registry.
type Metrics struct {
	registry *prometheus.Registry

	tracksStarted  *prometheus.CounterVec
	tracksFailed   *prometheus.CounterVec
	tracksSkipped  *prometheus.CounterVec
	sinkRetries    *prometheus.CounterVec
	sinkLost       *prometheus.CounterVec
	pending        *prometheus.GaugeVec
	playing        *prometheus.GaugeVec
	bytesStreamed  *prometheus.GaugeVec
	guilds         prometheus.Gauge
	commands       *prometheus.CounterVec
	filterRejected *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	guild := []string{"guild"}

	return &Metrics{
		registry: reg,
		tracksStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tracks_started_total", Help: "Tracks that started playing.",
		}, guild),
		tracksFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tracks_failed_total", Help: "Tracks that could not be started.",
		}, guild),
		tracksSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tracks_skipped_total", Help: "Tracks skipped by a command.",
		}, guild),
		sinkRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_retries_total", Help: "Retried starts after transient output errors.",
		}, guild),
		sinkLost: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_lost_total", Help: "Output connections lost for good.",
		}, guild),
		pending: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_pending", Help: "Tracks waiting to play.",
		}, guild),
		playing: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "playing", Help: "1 while a track is playing or paused.",
		}, guild),
		bytesStreamed: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "bytes_streamed", Help: "Audio bytes sent to the output.",
		}, guild),
		guilds: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "guilds", Help: "Guilds with a live scheduler.",
		}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total", Help: "Commands handled, by name and outcome.",
		}, []string{"command", "outcome"}),
		filterRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "filter_rejections_total", Help: "Requests rejected by admission filters.",
		}, []string{"code"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) TrackStarted(id snowflake.ID) { m.tracksStarted.WithLabelValues(id.String()).Inc() }
func (m *Metrics) TrackFailed(id snowflake.ID)  { m.tracksFailed.WithLabelValues(id.String()).Inc() }
func (m *Metrics) TrackSkipped(id snowflake.ID) { m.tracksSkipped.WithLabelValues(id.String()).Inc() }
func (m *Metrics) SinkRetry(id snowflake.ID)    { m.sinkRetries.WithLabelValues(id.String()).Inc() }
func (m *Metrics) SinkLost(id snowflake.ID)     { m.sinkLost.WithLabelValues(id.String()).Inc() }

// SetPending records the pending queue length.
func (m *Metrics) SetPending(id snowflake.ID, n int) {
	m.pending.WithLabelValues(id.String()).Set(float64(n))
}

// SetPlaying records whether the guild is playing.
func (m *Metrics) SetPlaying(id snowflake.ID, playing bool) {
	v := 0.0
	if playing {
		v = 1
	}
	m.playing.WithLabelValues(id.String()).Set(v)
}

// SetBytesStreamed records the bytes streamed by the guild's output.
func (m *Metrics) SetBytesStreamed(id snowflake.ID, n int64) {
	m.bytesStreamed.WithLabelValues(id.String()).Set(float64(n))
}

// SetGuilds records the number of live schedulers.
func (m *Metrics) SetGuilds(n int) {
	m.guilds.Set(float64(n))
}

// Command counts a handled command.
func (m *Metrics) Command(name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commands.WithLabelValues(name, outcome).Inc()
}

// FilterRejected counts a filter rejection.
func (m *Metrics) FilterRejected(code string) {
	m.filterRejected.WithLabelValues(code).Inc()
}

// Forget drops the per-guild series of a removed guild.
func (m *Metrics) Forget(id snowflake.ID) {
	l := prometheus.Labels{"guild": id.String()}
	for _, v := range []*prometheus.CounterVec{m.tracksStarted, m.tracksFailed, m.tracksSkipped, m.sinkRetries, m.sinkLost} {
		v.Delete(l)
	}
	for _, v := range []*prometheus.GaugeVec{m.pending, m.playing, m.bytesStreamed} {
		v.Delete(l)
	}
}
