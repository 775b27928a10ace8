package app

import (
	"fmt"
	"net/http"
	"strings"

	"carmarket/api/internal/rbac"
)

// routeAdmin dispatches /api/admin/... Listing moderation needs the moderate
// action; user management is admin only.
func (s *HTTPServer) routeAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 1 && parts[0] == "dashboard":
		s.handleAdminDashboard(w, r, session)
	case len(parts) == 2 && parts[0] == "listings" && parts[1] == "pending":
		s.handleAdminPendingQueue(w, r, session)
	case len(parts) == 2 && parts[0] == "listings":
		s.handleAdminListing(w, r, session, parts[1])
	case len(parts) == 3 && parts[0] == "listings":
		s.handleAdminListingAction(w, r, session, parts[1], parts[2])
	case len(parts) == 1 && parts[0] == "users":
		s.handleAdminUsers(w, r, session)
	case len(parts) == 3 && parts[0] == "users" && parts[2] == "role":
		s.handleAdminUserRole(w, r, session, parts[1])
	case len(parts) == 3 && parts[0] == "users" && parts[2] == "status":
		s.handleAdminUserStatus(w, r, session, parts[1])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAdminDashboard(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.service.Can(session.Role, rbac.ActionModerate) {
		s.forbid(w, r, session, string(rbac.ActionModerate))
		return
	}
	result, err := s.service.DashboardStats(r.Context())
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAdminPendingQueue(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.service.Can(session.Role, rbac.ActionModerate) {
		s.forbid(w, r, session, string(rbac.ActionModerate))
		return
	}

	page, limit := 1, 20
	if v, err := parseInt(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := parseInt(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}

	result, err := s.service.ListPendingListings(r.Context(), page, limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAdminListing soft-deletes: moderators deactivate a listing, they never
// remove the row.
func (s *HTTPServer) handleAdminListing(w http.ResponseWriter, r *http.Request, session Session, listingID string) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.service.Can(session.Role, rbac.ActionModerate) {
		s.forbid(w, r, session, string(rbac.ActionModerate))
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Deactivate(r.Context(), listingID, session, body.Reason)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAdminListingAction(w http.ResponseWriter, r *http.Request, session Session, listingID, action string) {
	if !s.service.Can(session.Role, rbac.ActionModerate) {
		s.forbid(w, r, session, string(rbac.ActionModerate))
		return
	}

	if action == "pending-changes" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		result, err := s.service.GetListingWithPendingChanges(r.Context(), listingID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	var body struct {
		ExpectedVersion int    `json:"expectedVersion"`
		Reason          string `json:"reason"`
		Status          string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	var (
		result map[string]any
		err    error
	)
	switch action {
	case "approve":
		result, err = s.service.ApproveListing(r.Context(), listingID, session.UserID, body.ExpectedVersion)
	case "reject":
		result, err = s.service.RejectListing(r.Context(), listingID, session.UserID, body.Reason)
	case "status":
		result, err = s.service.UpdateStatus(r.Context(), listingID, session, body.Status, body.Reason, body.ExpectedVersion)
	case "featured":
		result, err = s.service.ToggleFeatured(r.Context(), listingID, session.UserID)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request, session Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		s.forbid(w, r, session, string(rbac.ActionAdmin))
		return
	}

	search := strings.TrimSpace(r.URL.Query().Get("q"))
	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("offset")

	limit := 50
	offset := 0
	if limitStr != "" {
		if v, err := parseInt(limitStr); err == nil && v > 0 {
			limit = v
		}
	}
	if offsetStr != "" {
		if v, err := parseInt(offsetStr); err == nil && v >= 0 {
			offset = v
		}
	}

	result, err := s.service.ListUsers(r.Context(), search, limit, offset)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleAdminUserRole(w http.ResponseWriter, r *http.Request, session Session, userID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		s.forbid(w, r, session, string(rbac.ActionAdmin))
		return
	}

	var body struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	if err := s.service.UpdateUserRole(r.Context(), session.UserID, userID, body.Role); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAdminUserStatus(w http.ResponseWriter, r *http.Request, session Session, userID string) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		s.forbid(w, r, session, string(rbac.ActionAdmin))
		return
	}

	var body struct {
		IsActive *bool `json:"isActive"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if body.IsActive == nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "isActive is required", nil)
		return
	}

	if err := s.service.SetUserActive(r.Context(), session.UserID, userID, *body.IsActive); err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid int: empty")
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid int: %s", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
