package core

import (
	"errors"
	"strings"
)

// AllCategories is the filter value that disables the category constraint.
const AllCategories = "All"

// DefaultCategories is the preset list offered by the forms. Any other
// category may still be typed in.
var DefaultCategories = []string{"Food", "Transport", "Entertainment", "Bills", "Shopping", "Other"}

type (
	// Expense is a stored expense record. ID is assigned by the store and
	// never changes afterwards.
	Expense struct {
		ID          int64
		Amount      float64
		Category    string
		Date        string // YYYY-MM-DD, compared lexicographically
		Description string
	}

	// ExpenseInput holds the raw form values for an add or edit.
	ExpenseInput struct {
		Amount      string
		Category    string
		Date        string
		Description string
	}

	// Filter narrows a listing. Empty bounds are unconstrained and both
	// bounds are inclusive.
	Filter struct {
		Category string
		DateFrom string
		DateTo   string
	}
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidAmount = errors.New("invalid amount")
)

// ValidationError reports which field made an input unacceptable.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

// Message is the text shown to the user in the form.
func (e *ValidationError) Message() string {
	if errors.Is(e.Err, ErrInvalidAmount) {
		return "Please enter a valid amount!"
	}
	return "Amount, Category, and Date are required!"
}

// Unwrap exposes both the specific reason and ErrValidation to errors.Is.
func (e *ValidationError) Unwrap() []error {
	return []error{e.Err, ErrValidation}
}

// Parse validates the input and converts it to an Expense without an ID.
// Required fields are checked before the amount is parsed. The description
// is kept exactly as typed.
func (in ExpenseInput) Parse() (Expense, error) {
	amount := strings.TrimSpace(in.Amount)
	category := strings.TrimSpace(in.Category)
	date := strings.TrimSpace(in.Date)

	switch {
	case amount == "":
		return Expense{}, &ValidationError{Field: "amount", Err: ErrMissingField}
	case category == "":
		return Expense{}, &ValidationError{Field: "category", Err: ErrMissingField}
	case date == "":
		return Expense{}, &ValidationError{Field: "date", Err: ErrMissingField}
	}

	value, err := ParseAmount(amount)
	if err != nil {
		return Expense{}, &ValidationError{Field: "amount", Err: err}
	}

	return Expense{
		Amount:      value,
		Category:    category,
		Date:        date,
		Description: in.Description,
	}, nil
}

// Input converts a stored expense back to form values, e.g. to prefill the
// edit form.
func (e Expense) Input() ExpenseInput {
	return ExpenseInput{
		Amount:      FormatAmount(e.Amount),
		Category:    e.Category,
		Date:        e.Date,
		Description: e.Description,
	}
}

// Normalize trims the filter values. A blank category is treated as "All".
func (f Filter) Normalize() Filter {
	f.Category = strings.TrimSpace(f.Category)
	if f.Category == "" {
		f.Category = AllCategories
	}
	f.DateFrom = strings.TrimSpace(f.DateFrom)
	f.DateTo = strings.TrimSpace(f.DateTo)
	return f
}

// HasCategory reports whether the filter constrains the category.
func (f Filter) HasCategory() bool {
	c := strings.TrimSpace(f.Category)
	return c != "" && c != AllCategories
}

// Total sums the amounts of the given expenses.
func Total(items []Expense) float64 {
	var sum float64
	for _, e := range items {
		sum += e.Amount
	}
	return sum
}
