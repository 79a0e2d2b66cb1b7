package http

import (
	"errors"
	"net/http"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/storage"
)

const (
	msgAdded       = "Expense added successfully!"
	msgUpdated     = "Expense updated successfully!"
	msgDeleted     = "Expense deleted successfully!"
	msgConfirm     = "Are you sure you want to delete this expense?"
	msgNotFound    = "Expense not found"
	msgNotApproved = "Deletion was not confirmed"
)

// handleListExpenses returns the table for the filter in the query. htmx
// gets the table partial, a plain browser the whole page.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f := ParseFilter(r.URL.Query())
	if !isHTMX(r) {
		s.renderPage(w, r, http.StatusOK, f, nil, nil)
		return
	}

	items, err := s.store.List(r.Context(), f)
	if err != nil {
		s.loggerFor(r).ErrorContext(r.Context(), "List expenses failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpList)
		s.render(w, r, http.StatusInternalServerError, "expenses_table", tableView{Error: "Error loading expenses: " + err.Error()})
		return
	}
	s.render(w, r, http.StatusOK, "expenses_table", newTableView(items))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	body, fail := ParseBodyOrFail(r)
	if fail != nil {
		fail.Write(w)
		return
	}
	in := ExpenseInputFrom(body)

	id, err := s.store.Add(r.Context(), in)
	if err != nil {
		var verr *core.ValidationError
		switch {
		case errors.As(err, &verr):
			if isHTMX(r) || body.IsJSON() {
				UnprocessableEntityError(verr.Message()).Write(w)
				return
			}
			page := formView{Input: in, Error: verr.Message()}
			s.renderPageWithAdd(w, r, http.StatusUnprocessableEntity, page)
		default:
			s.writeInternal(w, r, "Failed to add expense: "+err.Error())
		}
		return
	}

	switch {
	case body.IsJSON():
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
	case isHTMX(r):
		NewHTMXResponse().
			TriggerExpenseCreated(id).
			TriggerFormReset().
			TriggerSuccessNotification(msgAdded).
			Write(w)
	default:
		SeeOther("/").Write(w)
	}
}

// handleEditExpense opens the edit form prefilled from the store.
func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	id, fail := ParseExpenseID(r)
	if fail != nil {
		fail.Write(w)
		return
	}

	e, ok := s.loadExpense(w, r, id)
	if !ok {
		return
	}

	editor := &formView{ID: e.ID, Input: e.Input()}
	if isHTMX(r) {
		s.render(w, r, http.StatusOK, "edit_form", editor)
		return
	}
	s.renderPage(w, r, http.StatusOK, core.Filter{}.Normalize(), editor, nil)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, fail := ParseExpenseID(r)
	if fail != nil {
		fail.Write(w)
		return
	}
	body, fail := ParseBodyOrFail(r)
	if fail != nil {
		fail.Write(w)
		return
	}
	in := ExpenseInputFrom(body)

	if err := s.store.Update(r.Context(), id, in); err != nil {
		var verr *core.ValidationError
		switch {
		case errors.As(err, &verr):
			editor := &formView{ID: id, Input: in, Error: verr.Message()}
			switch {
			case body.IsJSON():
				UnprocessableEntityError(verr.Message()).Write(w)
			case isHTMX(r):
				s.render(w, r, http.StatusUnprocessableEntity, "edit_form", editor)
			default:
				s.renderPage(w, r, http.StatusUnprocessableEntity, core.Filter{}.Normalize(), editor, nil)
			}
		default:
			s.writeInternal(w, r, "Failed to update expense: "+err.Error())
		}
		return
	}

	switch {
	case body.IsJSON():
		w.WriteHeader(http.StatusNoContent)
	case isHTMX(r):
		NewHTMXResponse().
			TriggerExpenseUpdated(id).
			TriggerEditorClose().
			TriggerSuccessNotification(msgUpdated).
			Write(w)
	default:
		SeeOther("/").Write(w)
	}
}

// handleConfirmDelete asks before anything is removed.
func (s *Server) handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	id, fail := ParseExpenseID(r)
	if fail != nil {
		fail.Write(w)
		return
	}

	e, ok := s.loadExpense(w, r, id)
	if !ok {
		return
	}

	confirm := &confirmView{Expense: e, Prompt: msgConfirm}
	if isHTMX(r) {
		s.render(w, r, http.StatusOK, "delete_confirm", confirm)
		return
	}
	s.renderPage(w, r, http.StatusOK, core.Filter{}.Normalize(), nil, confirm)
}

// handleDeleteExpense deletes only when the request carries confirm=yes.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, fail := ParseExpenseID(r)
	if fail != nil {
		fail.Write(w)
		return
	}
	body, fail := ParseBodyOrFail(r)
	if fail != nil {
		fail.Write(w)
		return
	}

	if body.Get("confirm") != "yes" {
		s.loggerFor(r).InfoContext(r.Context(), "Delete not confirmed", applog.FieldExpenseID, id)
		BadRequestError(msgNotApproved).Write(w)
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeInternal(w, r, "Failed to delete expense: "+err.Error())
		return
	}

	switch {
	case body.IsJSON():
		w.WriteHeader(http.StatusNoContent)
	case isHTMX(r):
		NewHTMXResponse().
			TriggerExpenseDeleted(id).
			TriggerEditorClose().
			TriggerSuccessNotification(msgDeleted).
			Write(w)
	default:
		SeeOther("/").Write(w)
	}
}

// loadExpense fetches one expense and writes the error response itself
// when it cannot.
func (s *Server) loadExpense(w http.ResponseWriter, r *http.Request, id int64) (core.Expense, bool) {
	e, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.loggerFor(r).InfoContext(r.Context(), "Expense not found",
			applog.FieldExpenseID, id,
			applog.FieldErrorType, applog.ErrorTypeNotFound)
		NotFoundError(msgNotFound).Write(w)
		return core.Expense{}, false
	}
	if err != nil {
		s.loggerFor(r).ErrorContext(r.Context(), "Get expense failed",
			applog.FieldError, err,
			applog.FieldExpenseID, id,
			applog.FieldOperation, applog.OpRead)
		s.writeInternal(w, r, "Failed to load expense: "+err.Error())
		return core.Expense{}, false
	}
	return e, true
}

// writeInternal reports a storage failure; htmx also gets an error
// notification.
func (s *Server) writeInternal(w http.ResponseWriter, r *http.Request, msg string) {
	resp := InternalServerError(msg)
	if isHTMX(r) {
		resp.TriggerErrorNotification(msg)
	}
	resp.Write(w)
}

// renderPageWithAdd re-renders the page keeping what the user typed in the
// add form.
func (s *Server) renderPageWithAdd(w http.ResponseWriter, r *http.Request, status int, add formView) {
	s.renderPageView(w, r, status, core.Filter{}.Normalize(), &add, nil, nil)
}
