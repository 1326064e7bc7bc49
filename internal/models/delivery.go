package models

import "net/http"

// DeliveryResult is the structured outcome of one outbound API call.
// HTTPCode is nil when no HTTP response was received (config, rate-limit
// and transport failures); callers never see a raised error instead of this.
type DeliveryResult struct {
	Success     bool
	HTTPCode    *int
	Headers     http.Header
	Body        string
	Error       string
	ExecutionMs int64
}

// BatchResult accumulates per-user outcomes of a bulk sync
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Details   map[int64]DeliveryResult
}
