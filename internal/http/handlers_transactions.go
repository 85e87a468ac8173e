package http

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ledger/internal/core"
	"ledger/internal/services"
	"ledger/internal/storage"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTransactionFilter(chi.URLParam(r, "budgetID"), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	txns, err := s.ledger.ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(txns, toTransaction))
}

func parseTransactionFilter(budgetID string, q url.Values) (storage.TransactionFilter, error) {
	f := storage.TransactionFilter{
		BudgetID:   budgetID,
		AccountID:  q.Get("account_id"),
		CategoryID: q.Get("category_id"),
		Limit:      defaultPageSize,
	}
	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = core.ParseDate(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = core.ParseDate(v); err != nil {
			return f, err
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From.Time) {
		return f, core.Invalidf("to %s is before from %s", f.To, f.From)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return f, core.Invalidf("limit must be between 1 and %d", maxPageSize)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, core.Invalidf("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	txn, err := s.ledger.CreateTransaction(r.Context(), services.CreateTransactionInput{
		BudgetID:        chi.URLParam(r, "budgetID"),
		Date:            req.Date,
		AccountID:       req.AccountID,
		Amount:          req.Amount.Money,
		Memo:            req.Memo,
		PayeeName:       req.Payee,
		CategoryNameID:  req.CategoryNameID,
		CategoryGroupID: req.CategoryGroupID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransaction(txn))
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := s.ledger.GetTransaction(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(txn))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := services.UpdateTransactionInput{
		ID:              chi.URLParam(r, "transactionID"),
		Date:            req.Date,
		AccountID:       req.AccountID,
		Memo:            req.Memo,
		PayeeName:       req.Payee,
		CategoryNameID:  req.CategoryNameID,
		CategoryGroupID: req.CategoryGroupID,
	}
	if req.Amount != nil {
		in.Amount = &req.Amount.Money
	}
	txn, err := s.ledger.UpdateTransaction(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransaction(txn))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), chi.URLParam(r, "transactionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
