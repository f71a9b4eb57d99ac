package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// WriteJSONResponse encodes v and writes it with a JSON content type. The
// body is buffered first so an encoding failure produces a clean 500 instead
// of a truncated response. Returns false when nothing was written.
func WriteJSONResponse(w http.ResponseWriter, v any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("API: Failed to encode JSON response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
	return true
}

// DecodeJSONBody decodes the request body into v, rejecting unknown fields.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// ExtractBearerToken pulls the bearer token from the Authorization header,
// or from the token query parameter for transports that cannot set headers.
func ExtractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		fields := strings.Fields(authHeader)
		if len(fields) >= 2 && strings.EqualFold(fields[0], "Bearer") {
			return strings.TrimSpace(strings.Join(fields[1:], " "))
		}
	}
	return r.URL.Query().Get("token")
}

// ParseLimitParam parses the limit query parameter, clamped to [1, max].
func ParseLimitParam(r *http.Request, defaultLimit, max int) int {
	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// ParseInt64Param parses an int64 query parameter, returning 0 when missing
// or invalid.
func ParseInt64Param(r *http.Request, name string) int64 {
	value, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return value
}
