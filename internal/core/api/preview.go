package api

import (
	"fmt"
	"net/http"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/fields"
	"github.com/solatis/segmentkeeper/internal/types"
	"github.com/solatis/segmentkeeper/internal/wire"
)

type previewRequest struct {
	Query wire.Query `json:"query"`
}

// handlePreview evaluates a query for the caller's shop.
// Any legacy query shape is accepted; wire.Query normalises it on decode.
func (s *Service) handlePreview(w http.ResponseWriter, r *http.Request) {
	shop := auth.ShopIDFromContext(r.Context())
	if shop == "" {
		s.writeError(w, r, http.StatusInternalServerError, fmt.Errorf("missing shop in context"))
		return
	}

	var req previewRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, statusFor(err, http.StatusBadRequest), fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Query.IsEmpty() {
		s.writeError(w, r, http.StatusBadRequest, types.ErrEmptyFilter)
		return
	}

	res, err := s.matcher.Match(r.Context(), shop, req.Query)
	if err != nil {
		s.writeError(w, r, statusFor(err, http.StatusBadGateway), err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleFields returns the field catalog in registry order.
func (s *Service) handleFields(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, fields.Catalog.All())
}
