package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerAcceptsSignedRequest(t *testing.T) {
	v := newTestValidator(Config{Enabled: true, Secret: "s"}, &fakeAttemptStore{})

	body := []byte(`{"moodle_id":7}`)
	sig, _ := Sign(body, "s")

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set(DefaultSignatureHeader, sig)
	req.Header.Set(RequestIDHeader, "req-h1")
	rec := httptest.NewRecorder()

	v.Handler()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	v := newTestValidator(Config{Enabled: true, Secret: "s"}, &fakeAttemptStore{})

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set(DefaultSignatureHeader, "bogus")
	rec := httptest.NewRecorder()

	v.Handler()(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid signature"}`, rec.Body.String())
}

func TestHandlerMethodNotAllowed(t *testing.T) {
	v := newTestValidator(Config{Enabled: true, Secret: "s"}, &fakeAttemptStore{})

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()

	v.Handler()(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
