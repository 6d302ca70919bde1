package api

import (
	"fmt"
	"net/http"

	"github.com/solatis/segmentkeeper/internal/core/auth"
	"github.com/solatis/segmentkeeper/internal/customers"
)

type importRequest struct {
	Customers []customers.Customer `json:"customers"`
}

// ImportStatus is the outcome of one customer in a batch.
type ImportStatus string

const (
	ImportAccepted ImportStatus = "accepted"
	ImportRejected ImportStatus = "rejected"
	ImportError    ImportStatus = "error"
)

// ImportResult reports one customer of a batch.
type ImportResult struct {
	ID     string       `json:"id"`
	Status ImportStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// ImportResponse is the body of POST /api/v1/customers.
type ImportResponse struct {
	AcceptedCount int            `json:"acceptedCount"`
	Results       []ImportResult `json:"results"`
}

// handleImportCustomers upserts a batch of customer rows.
// Rows are written one at a time so valid rows land even when others fail.
func (s *Service) handleImportCustomers(w http.ResponseWriter, r *http.Request) {
	shop := auth.ShopIDFromContext(r.Context())

	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, statusFor(err, http.StatusBadRequest), fmt.Errorf("invalid request body: %w", err))
		return
	}
	// Reject oversized batches before touching the database
	if len(req.Customers) == 0 || len(req.Customers) > s.opts.MaxBatchSize {
		s.writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("batch must contain between 1 and %d customers", s.opts.MaxBatchSize))
		return
	}

	resp := ImportResponse{Results: make([]ImportResult, len(req.Customers))}
	for i, c := range req.Customers {
		result := ImportResult{ID: c.ID, Status: ImportAccepted}
		if err := c.Validate(); err != nil {
			result.Status, result.Error = ImportRejected, err.Error()
		} else if err := s.customers.Upsert(r.Context(), shop, []customers.Customer{c}); err != nil {
			result.Status, result.Error = ImportError, err.Error()
		} else {
			resp.AcceptedCount++
		}
		resp.Results[i] = result
	}

	s.logger.Info("customers imported", "shop", shop, "accepted", resp.AcceptedCount, "total", len(req.Customers))
	s.writeJSON(w, http.StatusOK, resp)
}
