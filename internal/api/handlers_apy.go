package api

import (
	"net/http"
	"strconv"
	"time"
)

// defaultApyPeriodDays is the trailing window used when none is requested
const defaultApyPeriodDays = 30

// handleGetAPY handles GET /api/apy?date=&period=
func (s *Server) handleGetAPY(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	targetDate := time.Now().UTC().Truncate(24 * time.Hour)
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "date must be formatted as YYYY-MM-DD", nil)
			return
		}
		targetDate = parsed
	}

	periodDays := defaultApyPeriodDays
	if v := r.URL.Query().Get("period"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "period must be an integer number of days", nil)
			return
		}
		periodDays = parsed
	}

	results, err := s.apyService.GetPositionAPYs(r.Context(), userID, targetDate, periodDays)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":    targetDate.Format("2006-01-02"),
		"period":  periodDays,
		"results": results,
	})
}
