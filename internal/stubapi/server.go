package stubapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/goCartes/jwt"
	"github.com/MrEthical07/goCartes/session"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Route names accepted by [Server.Hits] and [Server.FailNext].
const (
	RouteLogin         = "login"
	RouteLogout        = "logout"
	RouteRefresh       = "refresh"
	RouteMe            = "me"
	RouteRegister      = "register"
	RouteResetPassword = "reset-password"
	RouteProfile       = "profile"
	RouteGlobalStats   = "stats-globales"
	RouteSiteStats     = "stats-sites"
	RouteStatsRefresh  = "stats-refresh"
	RouteTotalStats    = "stats-total"
	RouteCartesList    = "cartes-list"
	RouteCartesCreate  = "cartes-create"
	RouteCartesBatch   = "cartes-batch"
	RouteCartesDelete  = "cartes-delete"
	RouteSearch        = "search"
	RouteImport        = "import"
	RouteTemplate      = "template"
)

// Account is one login known to the stub. Password is given in clear and stored
// hashed.
type Account struct {
	Password string
	Disabled bool
	User     session.User
}

type account struct {
	hash     string
	disabled bool
	user     session.User
}

// Config configures a [Server].
type Config struct {
	Accounts []Account
	// Cartes seeds the inventory. Records are JSON objects keyed by column name.
	Cartes   []map[string]any
	TokenTTL time.Duration
	Secret   []byte
	Now      func() time.Time
	Logger   zerolog.Logger
}

var errNoAccounts = errors.New("stubapi: at least one account is required")

// Server is an in-memory stand-in for the cartes backend, for tests and local
// development. It is safe for concurrent use.
type Server struct {
	router *mux.Router
	tokens *jwt.Manager
	logger zerolog.Logger

	mu       sync.Mutex
	accounts map[string]account
	revoked  map[string]struct{}
	cartes   map[int]map[string]any
	nextID   int
	hits     map[string]int
	failures map[string][]int
	expireIn int
}

// New builds a Server. Tokens are HS256 JWTs signed with cfg.Secret; passwords are
// kept as argon2id hashes.
func New(cfg Config) (*Server, error) {
	if len(cfg.Accounts) == 0 {
		return nil, errNoAccounts
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if len(cfg.Secret) == 0 {
		cfg.Secret = []byte("cartes-stub-secret-key")
	}
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:    cfg.TokenTTL,
		Secret: cfg.Secret,
		Issuer: "cartes-stub",
		Now:    cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		tokens:   tokens,
		logger:   cfg.Logger,
		accounts: make(map[string]account, len(cfg.Accounts)),
		revoked:  make(map[string]struct{}),
		cartes:   make(map[int]map[string]any),
		nextID:   1,
		hits:     make(map[string]int),
		failures: make(map[string][]int),
	}
	for _, a := range cfg.Accounts {
		hash, err := hashPassword(a.Password)
		if err != nil {
			return nil, err
		}
		s.accounts[strings.ToLower(a.User.Username)] = account{hash: hash, disabled: a.Disabled, user: a.User}
	}
	for _, c := range cfg.Cartes {
		s.insertLocked(c)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", s.track(RouteLogin, s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset-password", s.track(RouteResetPassword, s.handleResetPassword)).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.track(RouteLogout, s.authed(s.handleLogout))).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.track(RouteRefresh, s.authed(s.handleRefresh))).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.track(RouteMe, s.authed(s.handleMe))).Methods(http.MethodGet)
	api.HandleFunc("/auth/register", s.track(RouteRegister, s.authed(s.handleRegister))).Methods(http.MethodPost)
	api.HandleFunc("/utilisateurs/profile", s.track(RouteProfile, s.authed(s.handleProfile))).Methods(http.MethodPut)

	api.HandleFunc("/statistiques/globales", s.track(RouteGlobalStats, s.authed(s.handleGlobalStats))).Methods(http.MethodGet)
	api.HandleFunc("/statistiques/sites", s.track(RouteSiteStats, s.authed(s.handleSiteStats))).Methods(http.MethodGet)
	api.HandleFunc("/statistiques/refresh", s.track(RouteStatsRefresh, s.authed(s.handleStatsRefresh))).Methods(http.MethodPost)
	api.HandleFunc("/cartes/statistiques/total", s.track(RouteTotalStats, s.authed(s.handleTotalStats))).Methods(http.MethodGet)

	api.HandleFunc("/cartes", s.track(RouteCartesList, s.authed(s.handleListCartes))).Methods(http.MethodGet)
	api.HandleFunc("/cartes", s.track(RouteCartesCreate, s.authed(s.handleCreateCarte))).Methods(http.MethodPost)
	api.HandleFunc("/cartes/batch", s.track(RouteCartesBatch, s.authed(s.handleBatchUpdate))).Methods(http.MethodPut)
	api.HandleFunc("/cartes/{id:[0-9]+}", s.track(RouteCartesDelete, s.authed(s.handleDeleteCarte))).Methods(http.MethodDelete)
	api.HandleFunc("/inventaire/recherche", s.track(RouteSearch, s.authed(s.handleSearch))).Methods(http.MethodGet)

	api.HandleFunc("/import-export/import", s.track(RouteImport, s.authed(s.handleImport))).Methods(http.MethodPost)
	api.HandleFunc("/import-export/template", s.track(RouteTemplate, s.authed(s.handleTemplate))).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, message("Route non trouvée"))
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hits returns how many requests reached route.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// FailNext makes the next len(statuses) requests to route answer with those
// statuses, in order, before any other processing.
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

// Revoke makes every request carrying token fail with 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = struct{}{}
}

// SetExpiresIn overrides the expiresIn reported by login and refresh; 0 restores
// the token lifetime.
func (s *Server) SetExpiresIn(secs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireIn = secs
}

// Carte returns a copy of the stored record with id.
func (s *Server) Carte(id int) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cartes[id]
	if !ok {
		return nil, false
	}
	return cloneRecord(c), true
}

// Count returns the inventory size.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cartes)
}

type principalKey struct{}

// track counts the request and applies any queued failure.
func (s *Server) track(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[route]++
		var status int
		if queue := s.failures[route]; len(queue) > 0 {
			status = queue[0]
			s.failures[route] = queue[1:]
		}
		s.mu.Unlock()

		s.logger.Debug().Str("route", route).Str("method", r.Method).Str("path", r.URL.Path).Msg("stub request")
		if status != 0 {
			writeJSON(w, status, message(http.StatusText(status)))
			return
		}
		next(w, r)
	}
}

// authed rejects requests without a valid, unrevoked bearer token.
func (s *Server) authed(next func(http.ResponseWriter, *http.Request, *jwt.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, message("Token manquant"))
			return
		}
		s.mu.Lock()
		_, revoked := s.revoked[token]
		s.mu.Unlock()
		if revoked {
			writeJSON(w, http.StatusUnauthorized, message("Session expirée"))
			return
		}
		claims, err := s.tokens.Parse(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, message("Token invalide"))
			return
		}
		next(w, r, claims)
	}
}

func message(msg string) map[string]any {
	return map[string]any{"message": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func cloneRecord(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
