package http

import (
	"html/template"
	"net/http"
	"slices"
	"strings"

	"expensetracker/internal/core"
)

// stripControl removes control characters except tab and newlines.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// sanitizeInput strips control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(stripControl(s))
}

// isHTMX reports whether the request was issued by htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

var templateFuncs = template.FuncMap{
	"money":  core.FormatMoney,
	"amount": core.FormatAmount,
}

type (
	pageView struct {
		Today      string
		Categories []string
		Filter     filterView
		Table      tableView
		Add        formView
		Editor     *formView
		Confirm    *confirmView
	}

	filterView struct {
		core.Filter
		Options []string
	}

	tableView struct {
		Items []core.Expense
		Total float64
		Error string
	}

	formView struct {
		ID    int64
		Input core.ExpenseInput
		Error string
	}

	confirmView struct {
		Expense core.Expense
		Prompt  string
	}
)

// filterOptions lists the filter form suggestions: All first, then the
// presets, then the current category when it is not a preset.
func filterOptions(categories []string, current string) []string {
	opts := append([]string{core.AllCategories}, categories...)
	if current != "" && !slices.Contains(opts, current) {
		opts = append(opts, current)
	}
	return opts
}

func newTableView(items []core.Expense) tableView {
	return tableView{Items: items, Total: core.Total(items)}
}
