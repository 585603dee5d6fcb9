package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// userIDFromRequest extracts the authenticated user from the request headers
func userIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// requireUser writes a 401 and returns false when no user is identified
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := userIDFromRequest(r)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required", nil)
		return "", false
	}
	return userID, true
}

// handleRefreshWallet handles POST /api/wallets/{address}/refresh
func (s *Server) handleRefreshWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	address := mux.Vars(r)["address"]

	result, err := s.refreshService.Refresh(r.Context(), userID, address)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetHistory handles GET /api/wallets/{address}/history?from=&to=
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	address := mux.Vars(r)["address"]

	// Default to the trailing 30 days
	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -30)

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must be formatted as YYYY-MM-DD", nil)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "to must be formatted as YYYY-MM-DD", nil)
			return
		}
	}

	snapshots, err := s.snapshotService.GetHistory(r.Context(), userID, address, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// handleGetLatest handles GET /api/wallets/{address}/latest
func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	address := mux.Vars(r)["address"]

	snapshot, err := s.snapshotService.GetLatest(r.Context(), userID, address)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if snapshot == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "wallet has no snapshots yet", nil)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}
