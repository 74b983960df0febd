// Package auth signs and verifies game server requests.
//
// A request is signed with HMAC-SHA256 over
//
//	UPPER(method) \n path \n unix timestamp \n body
//
// where path has no leading slash, using the secret of the API key sent in X-API-Key.
// The hex digest goes into X-Signature and the timestamp into X-Timestamp.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/woozymasta/masterlist/internal/models"
)

// Request headers carrying the signature.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
)

// Key material sizes.
const (
	KeyPrefix    = "ms_"
	keyRandLen   = 32
	secretLength = 64
)

// DefaultTolerance is the accepted clock skew between a server and the registry.
const DefaultTolerance = 300 * time.Second

// KeyStore finds active API keys by their public part.
type KeyStore interface {
	FindActiveAPIKey(ctx context.Context, key string) (models.APIKey, bool, error)
}

// Sign returns the hex HMAC-SHA256 of a request.
func Sign(secret, method, path string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload(method, path, ts, body)))
	return hex.EncodeToString(mac.Sum(nil))
}

func payload(method, path string, ts int64, body []byte) string {
	var b strings.Builder
	b.Grow(len(method) + len(path) + len(body) + 24)
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(strings.TrimPrefix(path, "/"))
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(ts, 10))
	b.WriteByte('\n')
	b.Write(body)
	return b.String()
}

// Verifier checks signed requests against a key store.
type Verifier struct {
	keys      KeyStore
	now       func() time.Time
	tolerance time.Duration
}

// NewVerifier creates a verifier. A non positive tolerance uses DefaultTolerance.
func NewVerifier(keys KeyStore, tolerance time.Duration, now func() time.Time) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{keys: keys, tolerance: tolerance, now: now}
}

// Failure tells why a request was rejected. It matches models.ErrUnauthorized.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string { return "unauthorized: " + f.Reason }

// Unwrap lets errors.Is match models.ErrUnauthorized.
func (f *Failure) Unwrap() error { return models.ErrUnauthorized }

// Verify authenticates a request and returns the API key that signed it.
func (v *Verifier) Verify(ctx context.Context, method, path, key, timestamp, signature string, body []byte) (models.APIKey, error) {
	if key == "" || timestamp == "" || signature == "" {
		return models.APIKey{}, &Failure{Reason: "missing_headers"}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return models.APIKey{}, &Failure{Reason: "bad_timestamp"}
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.tolerance {
		return models.APIKey{}, &Failure{Reason: "expired_timestamp"}
	}

	k, ok, err := v.keys.FindActiveAPIKey(ctx, key)
	if err != nil {
		return models.APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	if !ok {
		return models.APIKey{}, &Failure{Reason: "unknown_key"}
	}

	want := Sign(k.Secret, method, path, ts, body)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(signature))) {
		return models.APIKey{}, &Failure{Reason: "bad_signature"}
	}

	return k, nil
}

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateKeyPair returns a new public key ("ms_" + 32 chars) and a 64 char secret.
func GenerateKeyPair() (key, secret string, err error) {
	k, err := randomString(keyRandLen)
	if err != nil {
		return "", "", err
	}
	s, err := randomString(secretLength)
	if err != nil {
		return "", "", err
	}
	return KeyPrefix + k, s, nil
}

func randomString(n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate random bytes: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
