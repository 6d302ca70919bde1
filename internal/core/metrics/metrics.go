// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

var (
	// httpRequests counts API requests by route pattern and status
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmentkeeper_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"route", "code"})

	// httpDuration tracks API latency
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "segmentkeeper_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"route"})

	// matchTotal counts query evaluations by result
	matchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmentkeeper_match_total",
		Help: "Total segment query evaluations by result",
	}, []string{"result"}) // "ok", "invalid" or "error"

	// matchDuration tracks evaluation latency
	matchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "segmentkeeper_match_duration_seconds",
		Help:    "Segment query evaluation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	// matchConditions tracks the size of evaluated queries
	matchConditions = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "segmentkeeper_match_conditions",
		Help:    "Number of conditions per evaluated query",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
	})

	// segmentWrites counts segment mutations by operation
	segmentWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "segmentkeeper_segment_writes_total",
		Help: "Total segment writes by operation and result",
	}, []string{"op", "result"})
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveSegmentWrite records a segment create, update or delete.
func ObserveSegmentWrite(op string, err error) {
	segmentWrites.WithLabelValues(op, result(err)).Inc()
}

// Matcher is the evaluation interface the instrumented wrapper decorates.
type Matcher interface {
	Match(ctx context.Context, shop types.ShopID, q wire.Query) (types.MatchResult, error)
}

type instrumented struct {
	next Matcher
}

// InstrumentMatcher wraps m with evaluation metrics.
func InstrumentMatcher(m Matcher) Matcher {
	return instrumented{next: m}
}

func (i instrumented) Match(ctx context.Context, shop types.ShopID, q wire.Query) (types.MatchResult, error) {
	start := time.Now()
	res, err := i.next.Match(ctx, shop, q)
	matchDuration.Observe(time.Since(start).Seconds())
	matchConditions.Observe(float64(len(q.Conditions)))
	matchTotal.WithLabelValues(result(err)).Inc()
	return res, err
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrStorage):
		return "error"
	default:
		return "invalid"
	}
}
