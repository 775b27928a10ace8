package app

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"carmarket/api/internal/rbac"
	"carmarket/api/internal/search"
	"carmarket/api/internal/store"

	"github.com/shopspring/decimal"
)

// routeStorefront serves the read-only routes that work without a session.
// It reports whether the request was handled.
func (s *HTTPServer) routeStorefront(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if r.Method != http.MethodGet {
		return false
	}

	if len(parts) == 1 && parts[0] == "search" {
		query := r.URL.Query()
		limit, offset, err := limitOffset(query)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return true
		}
		writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
			Text:     strings.TrimSpace(query.Get("q")),
			Make:     query.Get("make"),
			FuelType: query.Get("fuelType"),
			BodyType: query.Get("bodyType"),
			City:     query.Get("city"),
			Limit:    limit,
			Offset:   offset,
		}))
		return true
	}

	if parts[0] != "listings" {
		return false
	}

	if len(parts) == 1 {
		q, err := listingQuery(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return true
		}
		result, err := s.service.ListListings(r.Context(), q)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, result)
		return true
	}

	if len(parts) == 2 {
		result, err := s.service.GetListing(r.Context(), parts[1], s.optionalSession(r))
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, result)
		return true
	}

	if len(parts) == 3 && parts[2] == "spec-sheet" {
		result, err := s.service.ExportSpecSheet(r.Context(), parts[1])
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return true
	}

	return false
}

// routeSeller serves the listing routes of a signed-in seller.
func (s *HTTPServer) routeSeller(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "me" && parts[1] == "listings" {
		result, err := s.service.ListMyListings(r.Context(), session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, result)
		return true
	}

	if parts[0] != "listings" {
		return false
	}
	if !s.service.Can(session.Role, rbac.ActionSell) {
		s.forbid(w, r, session, "sell")
		return true
	}

	if r.Method == http.MethodPost && len(parts) == 1 {
		var body CreateListingInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		result, err := s.service.CreateListing(r.Context(), session.UserID, body)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusCreated, result)
		return true
	}

	if len(parts) < 2 {
		return false
	}
	listingID := parts[1]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodPut:
			var body UpdateListingInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			view, change, err := s.service.ProposeUpdate(r.Context(), listingID, session.UserID, body)
			if err != nil {
				writeServiceError(w, err)
				return true
			}
			response := map[string]any{
				"listing":           view,
				"pendingChangeId":   nil,
				"hasPendingChanges": view["hasPendingChanges"],
				"message":           "No changes detected",
			}
			if change != nil {
				response["pendingChangeId"] = change.ID
				response["message"] = "Changes submitted for review"
			}
			writeJSON(w, http.StatusOK, response)
			return true
		case http.MethodDelete:
			if err := s.service.DeleteListing(r.Context(), listingID, session.UserID); err != nil {
				writeServiceError(w, err)
				return true
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "Listing deleted successfully"})
			return true
		}
		return false
	}

	if len(parts) != 3 {
		return false
	}

	switch {
	case r.Method == http.MethodGet && parts[2] == "pending-changes":
		result, err := s.service.GetPendingChanges(r.Context(), listingID, session)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, result)
		return true
	case r.Method == http.MethodPut && parts[2] == "status":
		s.handleStatusUpdate(w, r, session, listingID)
		return true
	case r.Method == http.MethodPost && parts[2] == "sold":
		result, err := s.service.MarkSold(r.Context(), listingID, session.UserID)
		if err != nil {
			writeServiceError(w, err)
			return true
		}
		writeJSON(w, http.StatusOK, result)
		return true
	}
	return false
}

func (s *HTTPServer) handleStatusUpdate(w http.ResponseWriter, r *http.Request, session Session, listingID string) {
	var body struct {
		Status          string `json:"status"`
		Reason          string `json:"reason"`
		ExpectedVersion int    `json:"expectedVersion"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.UpdateStatus(r.Context(), listingID, session, body.Status, body.Reason, body.ExpectedVersion)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func listingQuery(query url.Values) (ListingQuery, error) {
	filter := store.ListingFilter{
		Make:         strings.TrimSpace(query.Get("make")),
		Model:        strings.TrimSpace(query.Get("model")),
		City:         strings.TrimSpace(query.Get("city")),
		FuelType:     query.Get("fuelType"),
		Transmission: query.Get("transmission"),
		BodyType:     query.Get("bodyType"),
		Sort:         query.Get("sort"),
	}
	for key, dst := range map[string]**decimal.Decimal{"minPrice": &filter.MinPrice, "maxPrice": &filter.MaxPrice} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		value, err := decimal.NewFromString(raw)
		if err != nil {
			return ListingQuery{}, fmt.Errorf("%s must be a number", key)
		}
		*dst = &value
	}
	for key, dst := range map[string]*int{"minYear": &filter.MinYear, "maxYear": &filter.MaxYear} {
		raw := query.Get(key)
		if raw == "" {
			continue
		}
		value, err := parseInt(raw)
		if err != nil {
			return ListingQuery{}, fmt.Errorf("%s must be a whole number", key)
		}
		*dst = value
	}

	q := ListingQuery{Filter: filter}
	var err error
	if raw := query.Get("page"); raw != "" {
		if q.Page, err = parseInt(raw); err != nil {
			return ListingQuery{}, fmt.Errorf("page must be a whole number")
		}
	}
	if raw := query.Get("limit"); raw != "" {
		if q.Limit, err = parseInt(raw); err != nil {
			return ListingQuery{}, fmt.Errorf("limit must be a whole number")
		}
	}
	return q, nil
}

func limitOffset(query url.Values) (int, int, error) {
	limit, offset := 20, 0
	var err error
	if raw := query.Get("limit"); raw != "" {
		if limit, err = parseInt(raw); err != nil {
			return 0, 0, fmt.Errorf("limit must be a whole number")
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if offset, err = parseInt(raw); err != nil {
			return 0, 0, fmt.Errorf("offset must be a whole number")
		}
	}
	return limit, offset, nil
}
