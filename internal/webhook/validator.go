package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Guizzs26/go-user-sync/internal/models"
)

// ErrNoSecret signals a configuration problem: signing was requested but no
// shared secret is set.
var ErrNoSecret = errors.New("webhook secret is not configured")

// DefaultSignatureHeader carries the hex HMAC on both outbound and inbound requests
const DefaultSignatureHeader = "X-Moodle-Signature"

// RequestIDHeader carries the caller-chosen unique id used for replay detection
const RequestIDHeader = "X-Request-Id"

// DefaultReplayWindow is how long a request id stays poisoned after first use
const DefaultReplayWindow = 24 * time.Hour

// Sign computes the hex HMAC-SHA256 of the payload under the shared secret
func Sign(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a signature in constant time. Any empty input is false.
func Verify(payload []byte, signature, secret string) bool {
	if len(payload) == 0 || signature == "" || secret == "" {
		return false
	}

	expected, err := Sign(payload, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// AttemptStore persists webhook audit rows and answers replay lookups.
// RecordAttempt must fail on a duplicate request id so concurrent replays
// collapse to a single accepted request.
type AttemptStore interface {
	SeenRecently(ctx context.Context, requestID string, window time.Duration) (bool, error)
	RecordAttempt(ctx context.Context, attempt models.WebhookAttempt) error
}

// Config is the inbound verification surface
type Config struct {
	Enabled         bool
	Secret          string
	SignatureHeader string
	ReplayWindow    time.Duration
}

// Validator verifies signed inbound callbacks, the inbound mirror of the
// delivery client's outbound signing.
type Validator struct {
	cfg    Config
	store  AttemptStore
	logger *slog.Logger
}

func NewValidator(cfg Config, store AttemptStore, logger *slog.Logger) *Validator {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.ReplayWindow <= 0 {
		cfg.ReplayWindow = DefaultReplayWindow
	}
	return &Validator{cfg: cfg, store: store, logger: logger}
}

// RequestMeta carries transport details recorded in the audit trail
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Result is the validation outcome handed back to the endpoint
type Result struct {
	Valid bool
	Error string
}

// ValidateRequest checks the signature over the exact body bytes and rejects
// replayed request ids inside the configured window.
func (v *Validator) ValidateRequest(ctx context.Context, headers http.Header, body []byte, meta RequestMeta) Result {
	if !v.cfg.Enabled {
		return Result{Valid: true}
	}

	signature := headers.Get(v.cfg.SignatureHeader)
	if signature == "" {
		return Result{Valid: false, Error: "missing signature header: " + v.cfg.SignatureHeader}
	}

	if !Verify(body, signature, v.cfg.Secret) {
		return Result{Valid: false, Error: "invalid signature"}
	}

	requestID := headers.Get(RequestIDHeader)
	if requestID == "" {
		return Result{Valid: true}
	}

	seen, err := v.store.SeenRecently(ctx, requestID, v.cfg.ReplayWindow)
	if err != nil {
		v.logger.Error("Webhook replay lookup failed", "request_id", requestID, "error", err)
		return Result{Valid: false, Error: "replay check failed"}
	}
	if seen {
		return Result{Valid: false, Error: "duplicate request id (replay detected)"}
	}

	attempt := models.WebhookAttempt{
		RequestID: requestID,
		Signature: signature,
		Payload:   body,
		Verified:  true,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: time.Now(),
	}
	if err := v.store.RecordAttempt(ctx, attempt); err != nil {
		// The unique index on request_id turns a racing duplicate into an
		// insert failure, which still counts as a replay.
		v.logger.Warn("Webhook attempt insert rejected", "request_id", requestID, "error", err)
		return Result{Valid: false, Error: "duplicate request id (replay detected)"}
	}

	return Result{Valid: true}
}
