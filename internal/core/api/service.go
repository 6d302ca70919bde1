// Package api provides the HTTP handlers for the SegmentKeeper API.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/customers"
	"github.com/solatis/segmentkeeper/internal/segments"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Matcher evaluates a query for a shop. Implemented by *customers.Matcher.
type Matcher interface {
	Match(ctx context.Context, shop types.ShopID, q wire.Query) (types.MatchResult, error)
}

// Options bounds request handling.
type Options struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxBatchSize   int
}

// Service implements the HTTP API.
// Thin orchestration layer delegating to auth, customers and segments.
type Service struct {
	segments  *segments.Store
	customers *customers.Store
	matcher   Matcher
	auth      *auth.Authenticator
	opts      Options
	logger    *slog.Logger
}

// NewService creates service instance with dependencies.
func NewService(segs *segments.Store, custs *customers.Store, matcher Matcher, authenticator *auth.Authenticator, opts Options, logger *slog.Logger) (*Service, error) {
	if segs == nil {
		return nil, fmt.Errorf("segments store cannot be nil")
	}
	if custs == nil {
		return nil, fmt.Errorf("customers store cannot be nil")
	}
	if matcher == nil {
		return nil, fmt.Errorf("matcher cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		segments:  segs,
		customers: custs,
		matcher:   matcher,
		auth:      authenticator,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Handler returns the routed API.
// /metrics and /healthz are unauthenticated; everything under /api/v1 needs
// an API key.
func (s *Service) Handler() http.Handler {
	api := http.NewServeMux()
	route(api, "POST /api/v1/preview", s.handlePreview)
	route(api, "GET /api/v1/fields", s.handleFields)
	route(api, "GET /api/v1/segments", s.handleListSegments)
	route(api, "POST /api/v1/segments", s.handleCreateSegment)
	route(api, "GET /api/v1/segments/{id}", s.handleGetSegment)
	route(api, "PUT /api/v1/segments/{id}", s.handleUpdateSegment)
	route(api, "DELETE /api/v1/segments/{id}", s.handleDeleteSegment)
	route(api, "POST /api/v1/customers", s.handleImportCustomers)

	root := http.NewServeMux()
	root.Handle("/api/", s.auth.Middleware(s.authFailed)(api))
	route(root, "GET /metrics", promhttp.Handler().ServeHTTP)
	route(root, "GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return s.logRequests(s.limit(root))
}
