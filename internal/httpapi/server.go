// Package httpapi exposes the marketplace's data layer over HTTP: auth,
// listings, messaging, transactions, and admin moderation. It holds no
// state of its own; everything flows through the injected Database,
// TokenSigner, and Limiter.
package httpapi

import (
	"net/http"
	"time"

	"github.com/occasync/occasync"
)

// Default settlement delay for the simulated payment flow
const DefaultSettleDelay = 2 * time.Second

// Server wires the route handlers to their collaborators
type Server struct {
	db          *occasync.Database
	signer      *occasync.TokenSigner
	auth        *occasync.Authenticator
	limiter     occasync.Limiter
	logger      occasync.Logger
	settleDelay time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithSettleDelay overrides how long a pending transaction takes to
// settle (tests shrink this)
func WithSettleDelay(d time.Duration) Option {
	return func(s *Server) { s.settleDelay = d }
}

// WithLogger sets the request logger (default: NoOpLogger)
func WithLogger(logger occasync.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates the API server
func NewServer(db *occasync.Database, signer *occasync.TokenSigner, limiter occasync.Limiter, opts ...Option) *Server {
	s := &Server{
		db:          db,
		signer:      signer,
		auth:        occasync.NewAuthenticator(signer),
		limiter:     limiter,
		logger:      &occasync.NoOpLogger{},
		settleDelay: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/me", s.handleGetMe)

	mux.HandleFunc("GET /api/listings", s.handleGetListings)
	mux.HandleFunc("POST /api/listings", s.handleCreateListing)
	mux.HandleFunc("GET /api/listings/{id}", s.handleGetListing)
	mux.HandleFunc("PUT /api/listings/{id}", s.handleUpdateListing)
	mux.HandleFunc("DELETE /api/listings/{id}", s.handleDeleteListing)

	mux.HandleFunc("GET /api/messages", s.handleGetMessages)
	mux.HandleFunc("POST /api/messages", s.handleSendMessage)
	mux.HandleFunc("POST /api/messages/mark-read", s.handleMarkMessageRead)
	mux.HandleFunc("GET /api/messages/unread-count", s.handleGetUnreadCount)
	mux.HandleFunc("GET /api/conversations", s.handleGetConversations)

	mux.HandleFunc("GET /api/transactions", s.handleGetTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}/status", s.handleUpdateTransactionStatus)

	mux.HandleFunc("GET /api/admin/users", s.handleAdminGetUsers)
	mux.HandleFunc("GET /api/admin/listings", s.handleAdminGetListings)
	mux.HandleFunc("GET /api/admin/transactions", s.handleAdminGetTransactions)
	mux.HandleFunc("POST /api/admin/verify-user", s.handleAdminVerifyUser)
	mux.HandleFunc("POST /api/admin/moderate-listing", s.handleAdminModerateListing)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"mode": string(s.db.Mode()),
	})
}

// rateLimit throttles an operation for the request's client identity.
// Per-user operations append the user id to the key so one busy tenant
// behind a proxy cannot exhaust the shared budget.
func (s *Server) rateLimit(r *http.Request, op string, limit int) error {
	return s.limiter.Allow(r.Context(), occasync.ClientKey(r), op, limit, occasync.DefaultRateWindow)
}
