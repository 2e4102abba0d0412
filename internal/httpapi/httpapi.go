package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"vendormall/backend/internal/service"
	"vendormall/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
	log           logrus.FieldLogger
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger logrus.FieldLogger) *API {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		log:           logger.WithField("component", "httpapi"),
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	return a.csrfTokenForHour(time.Now().UTC().Truncate(time.Hour).Unix())
}

// validateCSRFToken accepts tokens from the current or the previous hour.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	current := time.Now().UTC().Truncate(time.Hour).Unix()
	return hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current))) ||
		hmac.Equal([]byte(token), []byte(a.csrfTokenForHour(current-3600)))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not found.")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		a.writeMethodNotAllowed(w)
	})

	router.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/csrf-token", a.handleCSRFToken).Methods(http.MethodGet)
	api.HandleFunc("/auth/me", a.requireAuth(a.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/auth/password", a.requireAuth(a.handleChangePassword)).Methods(http.MethodPost)
	api.HandleFunc("/users/staff", a.requireStaff(a.handleCreateStaff)).Methods(http.MethodPost)

	api.HandleFunc("/transactions", a.requireStaff(a.handleListTransactions)).Methods(http.MethodGet)
	api.HandleFunc("/transactions", a.requireStaff(a.handleCreateTransaction)).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", a.requireStaff(a.handleGetTransaction)).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", a.requireStaff(a.handleUpdateTransaction)).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/transactions/{id}", a.requireStaff(a.handleDeleteTransaction)).Methods(http.MethodDelete)

	api.HandleFunc("/transaction-items", a.requireStaff(a.handleListTransactionItems)).Methods(http.MethodGet)
	api.HandleFunc("/transaction-items", a.requireStaff(a.handleCreateTransactionItem)).Methods(http.MethodPost)
	api.HandleFunc("/transaction-items/{id:[0-9]+}", a.requireStaff(a.handleGetTransactionItem)).Methods(http.MethodGet)
	api.HandleFunc("/transaction-items/{id:[0-9]+}", a.requireStaff(a.handleUpdateTransactionItem)).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/transaction-items/{id:[0-9]+}", a.requireStaff(a.handleDeleteTransactionItem)).Methods(http.MethodDelete)

	api.HandleFunc("/reports/top-vendors", a.requireStaff(a.handleTopVendors)).Methods(http.MethodGet)
	api.HandleFunc("/reports/top-items", a.requireStaff(a.handleTopItems)).Methods(http.MethodGet)
	api.HandleFunc("/reports/transactions/{year:[0-9]{4}}/{month:[0-9]{1,2}}", a.requireStaff(a.handleMonthlySummary)).Methods(http.MethodGet)
	api.HandleFunc("/reports/transactions/{period}", a.requireStaff(a.handleTransactionSummary)).Methods(http.MethodGet)
	api.HandleFunc("/reports/vendor-statements/{year:[0-9]{4}}/{month:[0-9]{1,2}}", a.requireAuth(a.handleVendorStatements)).Methods(http.MethodGet)

	api.HandleFunc("/vendors", a.requireAuth(a.handleListVendors)).Methods(http.MethodGet)
	api.HandleFunc("/vendors", a.requireStaff(a.handleCreateVendor)).Methods(http.MethodPost)
	api.HandleFunc("/vendors/me", a.requireAuth(a.handleMyVendor)).Methods(http.MethodGet)
	api.HandleFunc("/vendors/{id:[0-9]+}", a.requireAuth(a.handleGetVendor)).Methods(http.MethodGet)
	api.HandleFunc("/vendors/{id:[0-9]+}", a.requireAuth(a.handleUpdateVendor)).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/vendors/{id:[0-9]+}", a.requireStaff(a.handleDeleteVendor)).Methods(http.MethodDelete)

	api.HandleFunc("/vendor-items", a.requireAuth(a.handleListVendorItems)).Methods(http.MethodGet)
	api.HandleFunc("/vendor-items", a.requireAuth(a.handleCreateVendorItem)).Methods(http.MethodPost)
	api.HandleFunc("/vendor-items/{id:[0-9]+}", a.requireAuth(a.handleGetVendorItem)).Methods(http.MethodGet)
	api.HandleFunc("/vendor-items/{id:[0-9]+}", a.requireAuth(a.handleUpdateVendorItem)).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/vendor-items/{id:[0-9]+}", a.requireAuth(a.handleDeleteVendorItem)).Methods(http.MethodDelete)

	api.HandleFunc("/vendor-payments", a.requireAuth(a.handleListVendorPayments)).Methods(http.MethodGet)
	api.HandleFunc("/vendor-payments", a.requireStaff(a.handleCreateVendorPayment)).Methods(http.MethodPost)
	api.HandleFunc("/vendor-payments/{id:[0-9]+}", a.requireAuth(a.handleGetVendorPayment)).Methods(http.MethodGet)
	api.HandleFunc("/vendor-payments/{id:[0-9]+}", a.requireStaff(a.handleDeleteVendorPayment)).Methods(http.MethodDelete)

	api.HandleFunc("/booth-charges", a.requireAuth(a.handleListBoothCharges)).Methods(http.MethodGet)
	api.HandleFunc("/booth-charges", a.requireStaff(a.handleCreateBoothCharge)).Methods(http.MethodPost)
	api.HandleFunc("/booth-charges/{id:[0-9]+}", a.requireAuth(a.handleGetBoothCharge)).Methods(http.MethodGet)
	api.HandleFunc("/booth-charges/{id:[0-9]+}", a.requireStaff(a.handleUpdateBoothCharge)).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/booth-charges/{id:[0-9]+}", a.requireStaff(a.handleDeleteBoothCharge)).Methods(http.MethodDelete)

	api.HandleFunc("/balance-payments", a.requireAuth(a.handleListBalancePayments)).Methods(http.MethodGet)
	api.HandleFunc("/balance-payments", a.requireStaff(a.handleCreateBalancePayment)).Methods(http.MethodPost)
	api.HandleFunc("/balance-payments/{id:[0-9]+}", a.requireAuth(a.handleGetBalancePayment)).Methods(http.MethodGet)
	api.HandleFunc("/balance-payments/{id:[0-9]+}", a.requireStaff(a.handleUpdateBalancePayment)).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/balance-payments/{id:[0-9]+}", a.requireStaff(a.handleDeleteBalancePayment)).Methods(http.MethodDelete)

	api.HandleFunc("/messages", a.requireAuth(a.handleListMessages)).Methods(http.MethodGet)
	api.HandleFunc("/messages", a.requireAuth(a.handleSendMessage)).Methods(http.MethodPost)
	api.HandleFunc("/messages/staff", a.requireAuth(a.handleStaffRecipients)).Methods(http.MethodGet)
	api.HandleFunc("/messages/unread-count", a.requireAuth(a.handleUnreadCount)).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id:[0-9]+}", a.requireAuth(a.handleGetMessage)).Methods(http.MethodGet)
	api.HandleFunc("/messages/{id:[0-9]+}", a.requireAuth(a.handleUpdateMessage)).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/messages/{id:[0-9]+}", a.requireAuth(a.handleDeleteMessage)).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id:[0-9]+}/read", a.requireAuth(a.handleMarkRead)).Methods(http.MethodPatch, http.MethodPost)
	api.HandleFunc("/messages/{id:[0-9]+}/replies", a.requireAuth(a.handleAddReply)).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id:[0-9]+}/replies/{replyID:[0-9]+}/read", a.requireAuth(a.handleMarkReplyRead)).Methods(http.MethodPatch, http.MethodPost)

	return a.withMiddleware(router)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) requireStaff(next http.HandlerFunc) http.HandlerFunc {
	return a.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := service.ActorFromContext(r.Context())
		if !actor.IsStaff {
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		next(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCSRFToken returns a stateless token valid for the current hour bucket.
// Clients send it in X-CSRF-Token on every mutating request.
func (a *API) handleCSRFToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

// Login is called before the client holds a CSRF token.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	if !a.validateCSRFToken(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
		a.writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Body != nil && r.Method != http.MethodGet {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		a.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(startedAt).String(),
		}).Info("request")
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

// decodeAndValidate reads the body into dest and runs its struct tags.
// Malformed bodies and tag failures both come back as 400s with field detail.
func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return false
		}
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	if detail := validateRequest(dest); detail != nil {
		writeJSON(w, http.StatusBadRequest, detail)
		return false
	}
	return true
}

// pathInt64 reads a positive id from the route. Ids the route pattern lets
// through but int64 cannot hold get the same 404 as a missing record.
func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return 0, false
	}
	return id, true
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeServiceError maps domain and store errors to their HTTP status.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, verr.Detail())
	case errors.Is(err, service.ErrUnauthenticated):
		a.writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, service.ErrForbidden):
		a.writeError(w, http.StatusForbidden, err)
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, store.ErrConflict):
		a.writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInvalid):
		a.writeError(w, http.StatusBadRequest, err)
	default:
		a.writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log only.
	msg := err.Error()
	if status >= 500 {
		a.log.WithError(err).WithField("status", status).Error("internal error")
		msg = "internal server error"
	}
	writeDetail(w, status, msg)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"detail": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
