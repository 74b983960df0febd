package server

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/woozymasta/masterlist/internal/auth"
	"github.com/woozymasta/masterlist/internal/metrics"
	"github.com/woozymasta/masterlist/internal/models"
)

type ctxKey int

const (
	ctxAPIKey ctxKey = iota
	ctxGameID
)

// GetRealIP attempts to determine the client's real IP address, trusting
// headers like CF-Connecting-IP or X-Forwarded-For if configured to do so.
func GetRealIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
			return cf
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// ipLimiter keeps a token bucket per client IP.
type ipLimiter struct {
	clients map[string]*limitedClient
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
}

type limitedClient struct {
	lastSeen time.Time
	limiter  *rate.Limiter
}

// newIPLimiter allows count requests per window and IP. A non positive count disables limiting.
func newIPLimiter(count int, window time.Duration) *ipLimiter {
	if window <= 0 {
		window = time.Minute
	}
	l := &ipLimiter{clients: make(map[string]*limitedClient), burst: count}
	if count > 0 {
		l.limit = rate.Limit(float64(count) / window.Seconds())
	} else {
		l.limit = rate.Inf
	}
	return l
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	if l.limit == rate.Inf {
		return true
	}

	l.mu.Lock()
	cli, found := l.clients[ip]
	if !found {
		cli = &limitedClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cli
	}
	cli.lastSeen = now
	limiter := cli.limiter
	l.mu.Unlock()

	return limiter.AllowN(now, 1)
}

func (l *ipLimiter) gc(now time.Time, idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > idle {
			delete(l.clients, ip)
		}
	}
}

// RateLimitMiddleware applies the per IP limit of a route class.
// It rejects requests with "429 Too Many Requests" if the limit is exceeded.
func (s *Server) RateLimitMiddleware(class string, next http.Handler) http.Handler {
	limiter := s.limiters[class]

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetRealIP(r, s.trustProxy)

		if limiter != nil && !limiter.allow(ip, time.Now()) {
			metrics.RateLimitRejections.WithLabelValues(class).Inc()
			log.Debug().Str("ip", ip).Str("class", class).Msg("Rate limit hit")

			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too Many Requests"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs the details of each HTTP request, including method, path, IP, and duration.
func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		realIP := GetRealIP(r, s.trustProxy)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", realIP).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// MetricsMiddleware counts requests by route pattern so path parameters never become labels.
func (s *Server) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		// the mux stores the matched pattern on the request
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// AdminAuthMiddleware protects endpoints by requiring a valid Bearer token in the Authorization header.
func (s *Server) AdminAuthMiddleware(next http.Handler) http.Handler {
	want := []byte("Bearer " + s.authToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if s.authToken == "" || subtle.ConstantTimeCompare(got, want) != 1 {
			metrics.AuthFailures.WithLabelValues("admin_token").Inc()
			writeError(w, r, models.ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetupMiddleware answers 503 until the initial setup is complete.
func (s *Server) SetupMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.setup != nil && !s.setup.IsComplete() {
			writeError(w, r, models.ErrSetupRequired)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GameScopeMiddleware reads the public game id of client routes.
// Resolution and the active check happen in the registry gate.
func (s *Server) GameScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("gameId"), 10, 64)
		if err != nil || id < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid game id"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxGameID, id)))
	})
}

// HMACMiddleware authenticates game server requests by their signature.
// The body is read once, verified, and handed to the handler again.
func (s *Server) HMACMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "Request body too large"})
				return
			}
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Unreadable request body"})
			return
		}

		key, err := s.verifier.Verify(r.Context(), r.Method, r.URL.Path,
			r.Header.Get(auth.HeaderAPIKey),
			r.Header.Get(auth.HeaderTimestamp),
			r.Header.Get(auth.HeaderSignature),
			body,
		)
		if err != nil {
			var failure *auth.Failure
			if errors.As(err, &failure) {
				metrics.AuthFailures.WithLabelValues(failure.Reason).Inc()
				log.Debug().
					Str("ip", GetRealIP(r, s.trustProxy)).
					Str("reason", failure.Reason).
					Msg("Signature rejected")
			}
			writeError(w, r, err)
			return
		}

		s.enqueueTouch(touchJob{KeyID: key.ID, At: time.Now().UTC()})

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxAPIKey, key)))
	})
}

func apiKeyFrom(ctx context.Context) models.APIKey {
	k, _ := ctx.Value(ctxAPIKey).(models.APIKey)
	return k
}

func gameIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxGameID).(int64)
	return id
}
