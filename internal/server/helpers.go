package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// uptime renders the time elapsed since t, rounded to the second.
func uptime(t time.Time) string {
	d := time.Since(t).Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours()/24), int(d.Hours())%24)
	}
}

// methodBadge returns a CSS class name for an HTTP method.
func methodBadge(method string) string {
	switch method {
	case "GET", "get":
		return "badge-get"
	case "POST", "post":
		return "badge-post"
	case "PUT", "put", "PATCH", "patch":
		return "badge-put"
	case "DELETE", "delete":
		return "badge-delete"
	default:
		return "badge-secondary"
	}
}
