package api

import (
	"net/http"
	"strconv"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/nav"
	"github.com/gorilla/mux"
)

// periodFromRequest parses the {year}/{month} path variables
func periodFromRequest(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	vars := mux.Vars(r)

	year, err := strconv.Atoi(vars["year"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "year must be an integer", nil)
		return 0, 0, false
	}
	month, err := strconv.Atoi(vars["month"])
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "month must be an integer", nil)
		return 0, 0, false
	}
	return year, month, true
}

// handleGetNav handles GET /api/nav/{year}/{month}
func (s *Server) handleGetNav(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	year, month, ok := periodFromRequest(w, r)
	if !ok {
		return
	}

	settings, err := s.navService.GetNav(r.Context(), userID, year, month)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// saveNavRequest is the PUT /api/nav/{year}/{month} body
type saveNavRequest struct {
	PortfolioTotals nav.PortfolioTotals `json:"portfolioTotals"`
	FeeSettings     models.FeeSettings  `json:"feeSettings"`
}

// handleSaveNav handles PUT /api/nav/{year}/{month}
func (s *Server) handleSaveNav(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	year, month, ok := periodFromRequest(w, r)
	if !ok {
		return
	}

	var req saveNavRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid request body: "+err.Error(), nil)
		return
	}

	settings, err := s.navService.SaveNav(r.Context(), userID, year, month, req.PortfolioTotals, req.FeeSettings)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, settings)
}

// handleGetPriorNav handles GET /api/nav/{year}/{month}/prior
func (s *Server) handleGetPriorNav(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	year, month, ok := periodFromRequest(w, r)
	if !ok {
		return
	}

	prior, err := s.navService.GetPriorNav(r.Context(), userID, year, month)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, prior)
}

// handleResetNav handles DELETE /api/nav/{year}/{month}
func (s *Server) handleResetNav(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	year, month, ok := periodFromRequest(w, r)
	if !ok {
		return
	}

	if err := s.navService.ResetNav(r.Context(), userID, year, month); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
