// Package handler implements the HTTP endpoints of the site API.
package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"studio-site/internal/apierror"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	// The decoder stream drops reader errors, so the limit is applied up front.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierror.Validation("Request body too large").Wrap(err)
		}
		return apierror.Validation("Invalid request body").Wrap(err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(v); err != nil {
		return apierror.Validation("Invalid request body").Wrap(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apierror.Validation("Invalid request body").Wrap(errors.New("trailing data after JSON value"))
	}
	return nil
}
