package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Headers carried by signed scan-reader requests.
const (
	HeaderIngestTimestamp = "X-Ingest-Timestamp"
	HeaderIngestSignature = "X-Ingest-Signature"
)

// IngestAuthMiddleware validates scan reader ingest signatures. Readers
// sign timestamp + "\n" + body with a shared HMAC-SHA256 secret; stale
// timestamps are rejected to limit replays.
type IngestAuthMiddleware struct {
	Secret  []byte
	MaxSkew time.Duration

	logger *log.Logger
}

// IngestOption customizes the ingest middleware.
type IngestOption func(*IngestAuthMiddleware)

// WithIngestLogger assigns a logger for rejected deliveries.
func WithIngestLogger(logger *log.Logger) IngestOption {
	return func(m *IngestAuthMiddleware) {
		m.logger = logger
	}
}

// NewIngestAuthMiddleware constructs ingest auth middleware.
func NewIngestAuthMiddleware(secret []byte, maxSkew time.Duration, opts ...IngestOption) *IngestAuthMiddleware {
	middleware := &IngestAuthMiddleware{Secret: secret, MaxSkew: maxSkew}
	for _, opt := range opts {
		opt(middleware)
	}
	return middleware
}

// Wrap enforces ingest signature validation.
func (m *IngestAuthMiddleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.Secret) == 0 {
			m.reject(r, "secret not configured")
			http.Error(w, "ingest auth not configured", http.StatusUnauthorized)
			return
		}
		timestamp := strings.TrimSpace(r.Header.Get(HeaderIngestTimestamp))
		signature := strings.TrimSpace(r.Header.Get(HeaderIngestSignature))
		if timestamp == "" || signature == "" {
			m.reject(r, "missing signature headers")
			http.Error(w, "missing ingest signature", http.StatusUnauthorized)
			return
		}
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			m.reject(r, "malformed timestamp")
			http.Error(w, "invalid ingest timestamp", http.StatusUnauthorized)
			return
		}
		skew := time.Since(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if m.MaxSkew > 0 && skew > m.MaxSkew {
			m.reject(r, "timestamp outside allowed skew")
			http.Error(w, "ingest signature expired", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read body error", http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()

		expected := computeIngestSignature(m.Secret, timestamp, body)
		if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			m.reject(r, "signature mismatch")
			http.Error(w, "invalid ingest signature", http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (m *IngestAuthMiddleware) reject(r *http.Request, reason string) {
	if m.logger == nil {
		return
	}
	m.logger.Printf("ingest rejected: remote=%s reason=%s", r.RemoteAddr, reason)
}

func computeIngestSignature(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("\n"))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
