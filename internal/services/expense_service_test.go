package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

type publishedEvent struct {
	action amqp.Action
	id     int64
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
	closed bool
}

func (p *fakePublisher) PublishExpenseEvent(_ context.Context, action amqp.Action, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{action, id})
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

// brokenRepo fails every call.
type brokenRepo struct{ err error }

func (r brokenRepo) InsertExpense(context.Context, core.Expense) (int64, error) { return 0, r.err }
func (r brokenRepo) GetExpense(context.Context, int64) (core.Expense, error) {
	return core.Expense{}, r.err
}
func (r brokenRepo) ListExpenses(context.Context, core.Filter) ([]core.Expense, error) {
	return nil, r.err
}
func (r brokenRepo) UpdateExpense(context.Context, int64, core.Expense) (int64, error) {
	return 0, r.err
}
func (r brokenRepo) DeleteExpense(context.Context, int64) (int64, error) { return 0, r.err }
func (r brokenRepo) CountExpenses(context.Context) (int64, error)        { return 0, r.err }
func (r brokenRepo) Ping(context.Context) error                          { return r.err }
func (r brokenRepo) Close() error                                        { return nil }

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: &bytes.Buffer{}})
}

func newTestService(t *testing.T) (*ExpenseService, *fakePublisher) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "expenses.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	pub := &fakePublisher{}
	svc := NewExpenseService(repo, pub, quietLogger())
	t.Cleanup(func() { svc.Close() })
	return svc, pub
}

func mustCount(t *testing.T, svc *ExpenseService) int64 {
	t.Helper()
	n, err := svc.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestAddIncreasesCountAndIsRetrievable(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	before := mustCount(t, svc)
	id, err := svc.Add(ctx, core.ExpenseInput{Amount: "12.50", Category: "Food", Date: "2024-01-15", Description: "lunch"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if after := mustCount(t, svc); after != before+1 {
		t.Fatalf("count went from %d to %d", before, after)
	}

	got, err := svc.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 12.5 || got.Category != "Food" || got.Date != "2024-01-15" || got.Description != "lunch" {
		t.Fatalf("unexpected expense: %+v", got)
	}

	if len(pub.events) != 1 || pub.events[0] != (publishedEvent{amqp.ActionCreated, id}) {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestAddInvalidLeavesStoreUnchanged(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   core.ExpenseInput
		want error
	}{
		{"non numeric amount", core.ExpenseInput{Amount: "abc", Category: "Food", Date: "2024-01-01"}, core.ErrInvalidAmount},
		{"missing category", core.ExpenseInput{Amount: "5", Date: "2024-01-01"}, core.ErrMissingField},
		{"missing date", core.ExpenseInput{Amount: "5", Category: "Food"}, core.ErrMissingField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tc.in)
			if !errors.Is(err, tc.want) || !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if n := mustCount(t, svc); n != 0 {
				t.Fatalf("store changed: count=%d", n)
			}
		})
	}
	if len(pub.events) != 0 {
		t.Fatalf("no events expected, got %+v", pub.events)
	}
}

func TestListFiltering(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	inputs := []core.ExpenseInput{
		{Amount: "1", Category: "Food", Date: "2023-12-31"},
		{Amount: "2", Category: "Food", Date: "2024-01-01"},
		{Amount: "3", Category: "Bills", Date: "2024-01-20"},
		{Amount: "4", Category: "Transport", Date: "2024-01-31"},
		{Amount: "5", Category: "Food", Date: "2024-02-01"},
	}
	for _, in := range inputs {
		if _, err := svc.Add(ctx, in); err != nil {
			t.Fatalf("add %+v: %v", in, err)
		}
	}

	all, err := svc.List(ctx, core.Filter{Category: core.AllCategories})
	if err != nil || len(all) != len(inputs) {
		t.Fatalf("All returned %d rows, err=%v", len(all), err)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Date < all[i].Date {
			t.Fatalf("not ordered by date descending: %+v", all)
		}
	}

	food, _ := svc.List(ctx, core.Filter{Category: "Food"})
	if len(food) != 3 {
		t.Fatalf("Food returned %d rows", len(food))
	}
	for _, e := range food {
		if e.Category != "Food" {
			t.Fatalf("non-matching row %+v", e)
		}
	}

	jan, _ := svc.List(ctx, core.Filter{Category: core.AllCategories, DateFrom: "2024-01-01", DateTo: "2024-01-31"})
	if len(jan) != 3 {
		t.Fatalf("January returned %d rows: %+v", len(jan), jan)
	}
	for _, e := range jan {
		if e.Date < "2024-01-01" || e.Date > "2024-01-31" {
			t.Fatalf("row outside range: %+v", e)
		}
	}
	if total := core.Total(jan); total != 9 {
		t.Fatalf("January total = %v, want 9", total)
	}
}

func TestUpdate(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	id, _ := svc.Add(ctx, core.ExpenseInput{Amount: "5", Category: "Food", Date: "2024-01-01", Description: "old"})
	if err := svc.Update(ctx, id, core.ExpenseInput{Amount: "7.25", Category: "Bills", Date: "2024-01-02"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := svc.Get(ctx, id)
	want := core.Expense{ID: id, Amount: 7.25, Category: "Bills", Date: "2024-01-02"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if last := pub.events[len(pub.events)-1]; last != (publishedEvent{amqp.ActionUpdated, id}) {
		t.Fatalf("unexpected last event %+v", last)
	}

	err := svc.Update(ctx, id, core.ExpenseInput{Amount: "x", Category: "Bills", Date: "2024-01-02"})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if again, _ := svc.Get(ctx, id); again != want {
		t.Fatalf("invalid update changed the row: %+v", again)
	}
}

func TestUpdateMissingIsNoOp(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	id, _ := svc.Add(ctx, core.ExpenseInput{Amount: "5", Category: "Food", Date: "2024-01-01"})
	before, _ := svc.List(ctx, core.Filter{})

	if err := svc.Update(ctx, id+100, core.ExpenseInput{Amount: "1", Category: "Other", Date: "2024-01-01"}); err != nil {
		t.Fatalf("update of missing id should not fail: %v", err)
	}

	after, _ := svc.List(ctx, core.Filter{})
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("store changed: before=%+v after=%+v", before, after)
	}
	if len(pub.events) != 1 {
		t.Fatalf("no-op update must not publish: %+v", pub.events)
	}
}

func TestDelete(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	keep, _ := svc.Add(ctx, core.ExpenseInput{Amount: "1", Category: "Food", Date: "2024-01-01"})
	gone, _ := svc.Add(ctx, core.ExpenseInput{Amount: "2", Category: "Food", Date: "2024-01-02"})

	if err := svc.Delete(ctx, gone); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, _ := svc.List(ctx, core.Filter{})
	if len(items) != 1 || items[0].ID != keep {
		t.Fatalf("unexpected rows: %+v", items)
	}
	if _, err := svc.Get(ctx, gone); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if last := pub.events[len(pub.events)-1]; last != (publishedEvent{amqp.ActionDeleted, gone}) {
		t.Fatalf("unexpected last event %+v", last)
	}

	if err := svc.Delete(ctx, gone); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	if n := mustCount(t, svc); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	svc, pub := newTestService(t)
	pub.err = errors.New("broker down")

	id, err := svc.Add(context.Background(), core.ExpenseInput{Amount: "3", Category: "Other", Date: "2024-03-03"})
	if err != nil {
		t.Fatalf("add should succeed despite publish failure: %v", err)
	}
	if _, err := svc.Get(context.Background(), id); err != nil {
		t.Fatalf("row should be stored: %v", err)
	}
}

func TestNilPublisher(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "expenses.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc := NewExpenseService(repo, nil, quietLogger())
	defer svc.Close()

	if _, err := svc.Add(context.Background(), core.ExpenseInput{Amount: "1", Category: "Food", Date: "2024-01-01"}); err != nil {
		t.Fatalf("add without publisher: %v", err)
	}
}

func TestStorageErrorsAreWrapped(t *testing.T) {
	cause := errors.New("database is locked")
	svc := NewExpenseService(brokenRepo{err: cause}, nil, quietLogger())
	ctx := context.Background()
	valid := core.ExpenseInput{Amount: "1", Category: "Food", Date: "2024-01-01"}

	if _, err := svc.Add(ctx, valid); !errors.Is(err, cause) {
		t.Errorf("Add: %v", err)
	}
	if _, err := svc.List(ctx, core.Filter{}); !errors.Is(err, cause) {
		t.Errorf("List: %v", err)
	}
	if err := svc.Update(ctx, 1, valid); !errors.Is(err, cause) {
		t.Errorf("Update: %v", err)
	}
	if err := svc.Delete(ctx, 1); !errors.Is(err, cause) {
		t.Errorf("Delete: %v", err)
	}
	if _, err := svc.Count(ctx); !errors.Is(err, cause) {
		t.Errorf("Count: %v", err)
	}
	if err := svc.Ping(ctx); !errors.Is(err, cause) {
		t.Errorf("Ping: %v", err)
	}
}

func TestClose(t *testing.T) {
	pub := &fakePublisher{}
	svc := NewExpenseService(brokenRepo{}, pub, quietLogger())
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !pub.closed {
		t.Fatal("publisher should be closed")
	}

	empty := &ExpenseService{}
	if err := empty.Close(); err != nil {
		t.Fatalf("Close should not return error with nil components: %v", err)
	}
}

func TestWritesLogThroughRequestLogger(t *testing.T) {
	svc, _ := newTestService(t)

	var buf bytes.Buffer
	reqLogger := log.New(log.Config{Format: "json", Output: &buf}).With(log.FieldRequestID, "req-42")
	ctx := log.WithLogger(context.Background(), reqLogger)

	if _, err := svc.Add(ctx, core.ExpenseInput{Amount: "4", Category: "Food", Date: "2024-01-01"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected one log line, got %q: %v", buf.String(), err)
	}
	if line[log.FieldRequestID] != "req-42" {
		t.Errorf("request id = %v", line[log.FieldRequestID])
	}
	if line[log.FieldComponent] != log.ComponentExpense || line[log.FieldOperation] != log.OpCreate {
		t.Errorf("line = %v", line)
	}
}
