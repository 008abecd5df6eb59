// Package metrics exposes Prometheus counters for the comment pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "convertbot"

// Result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the pipeline counters.
type Metrics struct {
	comments prometheus.Counter
	matches  prometheus.Counter
	rehosts  *prometheus.CounterVec
	replies  *prometheus.CounterVec
	reauth   *prometheus.CounterVec
}

// New creates the pipeline counters and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		comments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "comments_total",
			Help:      "Comments pulled from the stream.",
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Image links found in comments.",
		}),
		rehosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rehosts_total",
			Help:      "Rehost attempts by result.",
		}, []string{"result"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Reply posts by result.",
		}, []string{"result"}),
		reauth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reauth_total",
			Help:      "Token exchanges by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.comments, m.matches, m.rehosts, m.replies, m.reauth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewNop returns counters registered with a private registry, for callers that
// do not export metrics.
func NewNop() *Metrics {
	m, _ := New(prometheus.NewRegistry())
	return m
}

func (m *Metrics) ObserveComment() { m.comments.Inc() }

func (m *Metrics) ObserveMatches(n int) { m.matches.Add(float64(n)) }

func (m *Metrics) ObserveRehost(ok bool) { m.rehosts.WithLabelValues(result(ok)).Inc() }

func (m *Metrics) ObserveReply(ok bool) { m.replies.WithLabelValues(result(ok)).Inc() }

func (m *Metrics) ObserveReauth(ok bool) { m.reauth.WithLabelValues(result(ok)).Inc() }

func result(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFailed
}
