package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ledger/internal/core"
)

func (s *Server) handleListCategoryGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.ledger.ListCategoryGroups(r.Context(), chi.URLParam(r, "budgetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(groups, toCategoryGroup))
}

func (s *Server) handleCreateCategoryGroup(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	g, err := s.ledger.CreateCategoryGroup(r.Context(), chi.URLParam(r, "budgetID"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryGroup(g))
}

func (s *Server) handleListCategoryNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.ledger.ListCategoryNames(r.Context(), chi.URLParam(r, "budgetID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(names, toCategoryName))
}

func (s *Server) handleCreateCategoryName(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.ledger.CreateCategoryName(r.Context(), chi.URLParam(r, "budgetID"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryName(n))
}

// handleEnsureCategory materializes a category row in a month. It answers
// 201 when the row was created and 200 when it already existed.
func (s *Server) handleEnsureCategory(w http.ResponseWriter, r *http.Request) {
	var req ensureCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := core.ParsePeriod(req.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, created, err := s.ledger.EnsureCategory(r.Context(), chi.URLParam(r, "budgetID"), req.CategoryNameID, req.CategoryGroupID, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toCategory(c))
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	p, err := core.ParsePeriod(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.GetMonthSummary(r.Context(), chi.URLParam(r, "budgetID"), p.Year, p.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthSummary(summary))
}

func (s *Server) handleAssignBudget(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.AssignCategoryBudget(r.Context(), chi.URLParam(r, "categoryID"), req.Budgeted.Money)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategory(c))
}

func (s *Server) handleSetCategoryHidden(w http.ResponseWriter, r *http.Request) {
	var req hiddenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.SetCategoryHidden(r.Context(), chi.URLParam(r, "categoryID"), *req.Hidden)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategory(c))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteCategory(r.Context(), chi.URLParam(r, "categoryID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
