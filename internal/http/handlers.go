package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),

		"rejected_cross_origin": s.guard.Rejected(),
	})
}

// handleReady reports ready only when the templates are loaded and the
// store answers a ping and a count. The count is included in the reply.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)
	var expenses int64

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.store.Ping(ctx); err != nil {
		s.loggerFor(r).WarnContext(ctx, "Store ping failed", applog.FieldError, err)
		checks["store"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else if n, err := s.store.Count(ctx); err != nil {
		s.loggerFor(r).WarnContext(ctx, "Store count failed", applog.FieldError, err)
		checks["store"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
		expenses = n
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
		"expenses":  expenses,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleIndex renders the whole page: add form, filter form and table. The
// table honours the same filter query as GET /expenses.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, ParseFilter(r.URL.Query()), nil, nil)
}

// renderPage lists the expenses for f and renders the full page, with an
// optional editor or delete prompt open.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, f core.Filter, editor *formView, confirm *confirmView) {
	s.renderPageView(w, r, status, f, nil, editor, confirm)
}

// renderPageView is renderPage with the add form state supplied; nil means
// a fresh form with the first preset category, dated today.
func (s *Server) renderPageView(w http.ResponseWriter, r *http.Request, status int, f core.Filter, add, editor *formView, confirm *confirmView) {
	today := s.now().Format(time.DateOnly)
	page := pageView{
		Today:      today,
		Categories: s.categories,
		Add:        formView{Input: core.ExpenseInput{Category: s.categories[0], Date: today}},
		Filter:     filterView{Filter: f, Options: filterOptions(s.categories, f.Category)},
		Editor:     editor,
		Confirm:    confirm,
	}
	if add != nil {
		page.Add = *add
	}

	items, err := s.store.List(r.Context(), f)
	if err != nil {
		s.loggerFor(r).ErrorContext(r.Context(), "List expenses failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpList)
		page.Table = tableView{Error: "Error loading expenses: " + err.Error()}
	} else {
		page.Table = newTableView(items)
	}

	s.render(w, r, status, "index.html", page)
}
