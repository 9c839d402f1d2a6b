package evidence

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gosuda/evidra/internal/domain"
)

// Metrics records sealing protocol counters. A nil *Metrics is a no-op.
type Metrics struct {
	draftsCreated *prometheus.CounterVec
	seals         *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	sealDuration  prometheus.Histogram
}

// NewMetrics registers the evidence metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		draftsCreated: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidra_drafts_created_total",
				Help: "Evidence drafts created, by ingestion method.",
			},
			[]string{"method"},
		),
		seals: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidra_seals_total",
				Help: "Evidence records sealed, by trust level.",
			},
			[]string{"trust_level"},
		),
		rejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evidra_rejections_total",
				Help: "Requests rejected by the evidence protocol, by error code.",
			},
			[]string{"code"},
		),
		sealDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evidra_seal_duration_seconds",
				Help:    "Time spent sealing a draft.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) draftCreated(method domain.IngestionMethod) {
	if m == nil {
		return
	}
	m.draftsCreated.WithLabelValues(string(method)).Inc()
}

func (m *Metrics) sealed(trust domain.TrustLevel, started time.Time) {
	if m == nil {
		return
	}
	m.seals.WithLabelValues(string(trust)).Inc()
	m.sealDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) rejected(err error) {
	if m == nil || err == nil {
		return
	}
	code := domain.CodeOf(err)
	if code == domain.CodeInternal {
		return
	}
	m.rejections.WithLabelValues(string(code)).Inc()
}
