package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"ledger/internal/auth"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/services"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Ledger  *services.LedgerService
	Auth    *auth.Service
	Logger  *log.Logger
	Limiter *ratelimit.Limiter
	// TrustedProxies lists CIDRs whose X-Forwarded-For headers are honored.
	TrustedProxies []string
}

type Server struct {
	http.Server
	ledger   *services.LedgerService
	auth     *auth.Service
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	s := &Server{
		ledger:   deps.Ledger,
		auth:     deps.Auth,
		logger:   logger,
		limiter:  limiter,
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Handler)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Handler)
	r.Use(s.detector.Handler)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, rateLimited))
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.auth.Tokens()))

			r.Route("/budgets", func(r chi.Router) {
				r.Get("/", s.handleListBudgets)
				r.Post("/", s.handleCreateBudget)

				r.Route("/{budgetID}", func(r chi.Router) {
					r.Get("/", s.handleGetBudget)
					r.Patch("/", s.handleRenameBudget)
					r.Post("/recompute", s.handleRecompute)

					r.Get("/accounts", s.handleListAccounts)
					r.Post("/accounts", s.handleCreateAccount)
					r.Get("/payees", s.handleListPayees)
					r.Post("/payees", s.handleCreatePayee)

					r.Get("/category-groups", s.handleListCategoryGroups)
					r.Post("/category-groups", s.handleCreateCategoryGroup)
					r.Get("/category-names", s.handleListCategoryNames)
					r.Post("/category-names", s.handleCreateCategoryName)
					r.Post("/categories", s.handleEnsureCategory)
					r.Get("/months/{month}", s.handleMonthSummary)

					r.Get("/transactions", s.handleListTransactions)
					r.Post("/transactions", s.handleCreateTransaction)
				})
			})

			r.Delete("/accounts/{accountID}", s.handleDeleteAccount)
			r.Patch("/payees/{payeeID}", s.handleRenamePayee)
			r.Delete("/payees/{payeeID}", s.handleDeletePayee)

			r.Put("/categories/{categoryID}/budgeted", s.handleAssignBudget)
			r.Patch("/categories/{categoryID}", s.handleSetCategoryHidden)
			r.Delete("/categories/{categoryID}", s.handleDeleteCategory)

			r.Get("/transactions/{transactionID}", s.handleGetTransaction)
			r.Patch("/transactions/{transactionID}", s.handleUpdateTransaction)
			r.Delete("/transactions/{transactionID}", s.handleDeleteTransaction)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found", Kind: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed", Kind: "method_not_allowed"})
	})
	return r
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Kind: "rate_limited"})
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Requests  trace.Metrics             `json:"requests"`
	RateLimit ratelimit.Metrics         `json:"rate_limit"`
	Security  security.DetectionMetrics `json:"security"`
}

// handleHealth reports liveness plus request metrics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
	})
}

// handleReady checks the store can serve queries.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		err = s.Server.Shutdown(ctx)
	})
	return err
}
