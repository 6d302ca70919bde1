package api

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/core/metrics"
	"github.com/solatis/segmentkeeper/internal/segments"
	"github.com/solatis/segmentkeeper/internal/types"
)

// handleListSegments returns the shop's segments.
// The ETag is content-addressable over ids and update times, so clients
// polling with If-None-Match get 304 while nothing changed.
func (s *Service) handleListSegments(w http.ResponseWriter, r *http.Request) {
	segs, err := s.segments.List(r.Context(), auth.ShopIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, r, statusFor(err, http.StatusInternalServerError), err)
		return
	}

	etag := `"` + computeETag(segs) + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	s.writeJSON(w, http.StatusOK, segs)
}

func (s *Service) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseSegmentID(r.PathValue("id"))
	if err != nil {
		// malformed ids cannot exist
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, r.PathValue("id")))
		return
	}
	seg, err := s.segments.Get(r.Context(), auth.ShopIDFromContext(r.Context()), id)
	if err != nil {
		s.writeError(w, r, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	s.writeJSON(w, http.StatusOK, seg)
}

func (s *Service) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var in segments.Input
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, statusFor(err, http.StatusBadRequest), fmt.Errorf("invalid request body: %w", err))
		return
	}
	seg, err := s.segments.Create(r.Context(), auth.ShopIDFromContext(r.Context()), in)
	metrics.ObserveSegmentWrite("create", err)
	if err != nil {
		s.writeError(w, r, statusFor(err, http.StatusBadGateway), err)
		return
	}
	w.Header().Set("Location", "/api/v1/segments/"+string(seg.ID))
	s.writeJSON(w, http.StatusCreated, seg)
}

func (s *Service) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseSegmentID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, r.PathValue("id")))
		return
	}
	var in segments.Input
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, statusFor(err, http.StatusBadRequest), fmt.Errorf("invalid request body: %w", err))
		return
	}
	seg, err := s.segments.Update(r.Context(), auth.ShopIDFromContext(r.Context()), id, in)
	metrics.ObserveSegmentWrite("update", err)
	if err != nil {
		s.writeError(w, r, statusFor(err, http.StatusBadGateway), err)
		return
	}
	s.writeJSON(w, http.StatusOK, seg)
}

func (s *Service) handleDeleteSegment(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseSegmentID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("%w: %s", types.ErrSegmentNotFound, r.PathValue("id")))
		return
	}
	err = s.segments.Delete(r.Context(), auth.ShopIDFromContext(r.Context()), id)
	metrics.ObserveSegmentWrite("delete", err)
	if err != nil {
		s.writeError(w, r, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// computeETag hashes sorted id:updated_at pairs.
func computeETag(segs []segments.Segment) string {
	h := sha256.New()
	ids := make([]string, 0, len(segs))
	for _, seg := range segs {
		ids = append(ids, string(seg.ID)+":"+seg.UpdatedAt.UTC().Format(time.RFC3339Nano))
	}
	sort.Strings(ids)
	for _, id := range ids {
		h.Write([]byte(id))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
