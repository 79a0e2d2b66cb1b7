package services

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
)

// ExpenseRepository is the persistence port of the expense store.
type ExpenseRepository interface {
	InsertExpense(ctx context.Context, e core.Expense) (int64, error)
	GetExpense(ctx context.Context, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, f core.Filter) ([]core.Expense, error)
	UpdateExpense(ctx context.Context, id int64, e core.Expense) (int64, error)
	DeleteExpense(ctx context.Context, id int64) (int64, error)
	CountExpenses(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher announces committed changes. Optional.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, action amqp.Action, id int64) error
	Close() error
}

// ExpenseService validates form input, persists it and announces the change.
// Every write commits before it returns.
type ExpenseService struct {
	storage   ExpenseRepository
	publisher EventPublisher
	logger    *log.Logger
}

// NewExpenseService wires the store. publisher may be nil, in which case no
// events are sent.
func NewExpenseService(storage ExpenseRepository, publisher EventPublisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExpenseService{
		storage:   storage,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpense),
	}
}

// loggerFor returns the request logger carried by ctx, tagged as expense,
// or the service logger outside a request.
func (s *ExpenseService) loggerFor(ctx context.Context) *log.Logger {
	return log.FromContext(ctx, s.logger).WithComponent(log.ComponentExpense)
}

func (s *ExpenseService) eventsFor(ctx context.Context) *log.StructuredLogger {
	return log.NewStructuredLogger(s.loggerFor(ctx))
}

// rejected logs a validation failure at debug level and returns err.
func (s *ExpenseService) rejected(ctx context.Context, id int64, err error) error {
	s.loggerFor(ctx).DebugContext(ctx, "Expense input rejected",
		log.FieldExpenseID, id,
		log.FieldOperation, log.OpValidate,
		log.FieldErrorType, log.ErrorTypeValidation,
		log.FieldError, err)
	return err
}

// Add validates in and inserts it, returning the new id.
func (s *ExpenseService) Add(ctx context.Context, in core.ExpenseInput) (int64, error) {
	e, err := in.Parse()
	if err != nil {
		return 0, s.rejected(ctx, 0, err)
	}

	id, err := s.storage.InsertExpense(ctx, e)
	if err != nil {
		s.eventsFor(ctx).LogError(ctx, "Failed to add expense", err, log.ComponentStorage, log.OpCreate, log.ErrorTypeDatabase,
			log.NewFields().WithExpense(0, e.Amount, e.Category, e.Date))
		return 0, fmt.Errorf("add expense: %w", err)
	}

	s.eventsFor(ctx).LogExpenseWritten(ctx, log.OpCreate, id, e.Amount, e.Category, e.Date)
	s.publish(ctx, amqp.ActionCreated, id)
	return id, nil
}

// List returns the expenses matching f, newest date first.
func (s *ExpenseService) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	f = f.Normalize()
	items, err := s.storage.ListExpenses(ctx, f)
	if err != nil {
		s.eventsFor(ctx).LogError(ctx, "Failed to list expenses", err, log.ComponentStorage, log.OpList, log.ErrorTypeDatabase,
			log.NewFields().WithFilter(f.Category, f.DateFrom, f.DateTo))
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	s.loggerFor(ctx).DebugContext(ctx, "Listed expenses",
		log.FieldCategory, f.Category,
		log.FieldDateFrom, f.DateFrom,
		log.FieldDateTo, f.DateTo,
		log.FieldCount, len(items))
	return items, nil
}

// Get returns one expense or an error wrapping storage.ErrNotFound.
func (s *ExpenseService) Get(ctx context.Context, id int64) (core.Expense, error) {
	e, err := s.storage.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// Update validates in and overwrites every field of the expense but its id.
// Updating an id that does not exist succeeds without effect.
func (s *ExpenseService) Update(ctx context.Context, id int64, in core.ExpenseInput) error {
	e, err := in.Parse()
	if err != nil {
		return s.rejected(ctx, id, err)
	}

	n, err := s.storage.UpdateExpense(ctx, id, e)
	if err != nil {
		s.eventsFor(ctx).LogError(ctx, "Failed to update expense", err, log.ComponentStorage, log.OpUpdate, log.ErrorTypeDatabase,
			log.NewFields().WithExpense(id, e.Amount, e.Category, e.Date))
		return fmt.Errorf("update expense: %w", err)
	}
	if n == 0 {
		s.loggerFor(ctx).InfoContext(ctx, "Update matched no expense", log.FieldExpenseID, id, log.FieldRowsAffected, n)
		return nil
	}

	s.eventsFor(ctx).LogExpenseWritten(ctx, log.OpUpdate, id, e.Amount, e.Category, e.Date)
	s.publish(ctx, amqp.ActionUpdated, id)
	return nil
}

// Delete removes the expense. Deleting an id that does not exist succeeds
// without effect.
func (s *ExpenseService) Delete(ctx context.Context, id int64) error {
	n, err := s.storage.DeleteExpense(ctx, id)
	if err != nil {
		s.eventsFor(ctx).LogError(ctx, "Failed to delete expense", err, log.ComponentStorage, log.OpDelete, log.ErrorTypeDatabase,
			log.LogFields{log.FieldExpenseID: id})
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		s.loggerFor(ctx).InfoContext(ctx, "Delete matched no expense", log.FieldExpenseID, id, log.FieldRowsAffected, n)
		return nil
	}

	s.loggerFor(ctx).InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id, log.FieldOperation, log.OpDelete)
	s.publish(ctx, amqp.ActionDeleted, id)
	return nil
}

// Count returns the number of stored expenses.
func (s *ExpenseService) Count(ctx context.Context) (int64, error) {
	n, err := s.storage.CountExpenses(ctx)
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return n, nil
}

// Ping reports whether the store is reachable.
func (s *ExpenseService) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// publish never fails the caller; the row is already committed.
func (s *ExpenseService) publish(ctx context.Context, action amqp.Action, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, action, id); err != nil {
		s.eventsFor(ctx).LogError(ctx, "Failed to publish expense event", err, log.ComponentAMQP, log.OpPublish, log.ErrorTypeNetwork,
			log.LogFields{log.FieldExpenseID: id})
	}
}

// Close closes both storage and publisher connections
func (s *ExpenseService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}
