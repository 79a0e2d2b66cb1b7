package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	appweb "expensetracker/web"
)

// ExpenseStore is what the form needs from the expense service.
type ExpenseStore interface {
	Add(ctx context.Context, in core.ExpenseInput) (int64, error)
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	Update(ctx context.Context, id int64, in core.ExpenseInput) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server
	templates  *template.Template
	store      ExpenseStore
	categories []string
	logger     *applog.Logger
	guard      *security.OriginGuard
	now        func() time.Time
	started    time.Time

	shutdownOnce sync.Once
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now, used for the default date of the add form.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTemplates replaces the embedded templates.
func WithTemplates(t *template.Template) Option {
	return func(s *Server) { s.templates = t }
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, store ExpenseStore, categories []string, logger *applog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if len(categories) == 0 {
		categories = core.DefaultCategories
	}

	mux := http.NewServeMux()
	s := &Server{
		store:      store,
		categories: categories,
		logger:     logger.WithComponent(applog.ComponentHTTP),
		now:        time.Now,
		started:    time.Now(),
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.WithComponent(applog.ComponentTemplate).Warn("Failed parsing templates", applog.FieldError, err)
	} else {
		s.templates = t
	}

	for _, opt := range opts {
		opt(s)
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /expenses/{id}/edit", s.handleEditExpense)
	mux.HandleFunc("POST /expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("GET /expenses/{id}/delete", s.handleConfirmDelete)
	mux.HandleFunc("POST /expenses/{id}/delete", s.handleDeleteExpense)

	securityLogger := logger.WithComponent(applog.ComponentSecurity)
	s.guard = security.NewOriginGuard(func(r *http.Request, reason string) {
		securityLogger.WarnContext(r.Context(), "Cross-origin request rejected",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			"reason", reason)
	})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(logger, security.ExtractClientIP)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           tracer.Middleware(headers.Middleware(s.guard.Middleware(mux))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// loggerFor returns the request-scoped logger set by the trace middleware.
func (s *Server) loggerFor(r *http.Request) *applog.Logger {
	return applog.FromContext(r.Context(), s.logger).WithComponent(applog.ComponentHTTP)
}

// render executes a named template into a buffer and writes it only on
// success.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	tlog := applog.FromContext(r.Context(), s.logger).WithComponent(applog.ComponentTemplate)
	if s.templates == nil {
		tlog.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldErrorType, applog.ErrorTypeInternal)
		InternalServerError("Templates not loaded").Write(w)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		tlog.ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			applog.FieldOperation, applog.OpRender,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			"template", name)
		InternalServerError("Error rendering page").Write(w)
		return
	}

	NewHTMXResponse().Status(status).BodyHTML(buf.String()).Write(w)
}
