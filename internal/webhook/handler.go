package webhook

import (
	"encoding/json"
	"io"
	"net"
	"net/http"

	"github.com/Guizzs26/go-user-sync/pkg/metrics"
)

// MaxBodyBytes bounds inbound callback bodies to keep audit rows sane
const MaxBodyBytes = 1 << 20

// Handler exposes the validator as an HTTP endpoint. The signature is
// verified over the raw body bytes exactly as received.
func (v *Validator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}

		ip, _, splitErr := net.SplitHostPort(r.RemoteAddr)
		if splitErr != nil {
			ip = r.RemoteAddr
		}

		result := v.ValidateRequest(r.Context(), r.Header, body, RequestMeta{
			IPAddress: ip,
			UserAgent: r.UserAgent(),
		})

		w.Header().Set("Content-Type", "application/json")
		if !result.Valid {
			metrics.WebhookValidations.WithLabelValues("rejected").Inc()
			v.logger.Warn("Webhook rejected", "reason", result.Error, "ip", ip)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": result.Error})
			return
		}

		metrics.WebhookValidations.WithLabelValues("accepted").Inc()
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
