package web

// This file contains request parsing helpers shared across handlers.

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/fiscal/internal/fiscal"
)

// maxFormBody bounds non-upload request bodies (workflow forms, login).
const maxFormBody = 1 << 20

// documentID parses the {id} path parameter.
func documentID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &fiscal.ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return id, nil
}

// optionalID parses a positive integer form or query value. An empty
// value yields zero so the service applies its default.
func optionalID(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &fiscal.ValidationError{Field: field, Message: "must be a positive integer"}
	}
	return id, nil
}

// optionalDate checks a YYYY-MM-DD query value.
func optionalDate(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(time.DateOnly, raw); err != nil {
		return "", &fiscal.ValidationError{Field: field, Message: "must be a YYYY-MM-DD date"}
	}
	return raw, nil
}

// isJSON reports whether the request body is JSON.
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &fiscal.ValidationError{Field: "body", Message: "invalid JSON"}
	}
	return nil
}
