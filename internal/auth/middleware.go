package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// FingerprintHeader lets browsers distinguish guests sharing one address.
const FingerprintHeader = "X-Client-Fingerprint"

// Caller is the identity a request acts as. UserID is empty for guests.
type Caller struct {
	UserID   string
	GuestKey string
	IP       string
}

func (c Caller) IsGuest() bool {
	return c.UserID == ""
}

// Key returns the identity used for per-caller accounting.
func (c Caller) Key() string {
	if c.IsGuest() {
		return "guest:" + c.GuestKey
	}
	return c.UserID
}

type ctxKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the caller stored by Middleware, or an anonymous guest.
func FromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(ctxKey{}).(Caller); ok {
		return c
	}
	return Caller{}
}

// GuestKey derives a stable anonymous identity from the client address and
// optional fingerprint.
func GuestKey(ip, fingerprint string) string {
	sum := sha256.Sum256([]byte(ip + "|" + strings.TrimSpace(fingerprint)))
	return hex.EncodeToString(sum[:16])
}

// Middleware attaches a Caller to every request. Requests without a bearer
// token continue as guests; a token that fails verification is rejected.
func Middleware(v *Verifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			caller := Caller{
				IP:       ip,
				GuestKey: GuestKey(ip, r.Header.Get(FingerprintHeader)),
			}

			if token := bearerToken(r); token != "" {
				userID, err := v.Verify(token)
				if err != nil {
					log.Debug("reject session token", "err", err)
					unauthorized(w)
					return
				}
				caller.UserID = userID
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// RequireUser rejects guests with 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()).IsGuest() {
			unauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if c, err := r.Cookie("__session"); err == nil {
		return c.Value
	}
	return ""
}

// clientIP reads RemoteAddr, which chi's RealIP middleware has already
// rewritten from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
