// Package problem renders RFC 7807 problem+json responses for the
// payout API. Type URLs live under the platefare error namespace and
// every response carries the trace id so a restaurant support ticket
// can be matched to the sweep logs.
package problem

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.platefare.com/payouts/"
const traceHeader = "X-Trace-ID"

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	TraceID  string `json:"trace_id,omitempty"`
}

// Type expands a slug like "payout/not-found" into its full type URL.
func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends an RFC 7807 error response.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}

	details := Details{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	}
	if r != nil {
		details.Instance = r.URL.Path
		details.TraceID = r.Header.Get(traceHeader)
	}
	if details.TraceID == "" {
		details.TraceID = w.Header().Get(traceHeader)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(details)
}
