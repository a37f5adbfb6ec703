package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
)

// errBadJSON marks a body that is not well-formed JSON.
var errBadJSON = eris.New("api: malformed JSON body")

// writeJSON serializes v as JSON with the provided status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"detail": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}

// decodeJSON decodes the request body into dest. Unknown fields are ignored.
// A well-formed body with a value of the wrong type returns a
// *json.UnmarshalTypeError; anything else wraps errBadJSON.
func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close() //nolint:errcheck

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return typeErr
		}
		if errors.Is(err, io.EOF) {
			return eris.Wrap(errBadJSON, "empty body")
		}
		return eris.Wrap(errBadJSON, err.Error())
	}
	if decoder.More() {
		return eris.Wrap(errBadJSON, "unexpected data after JSON payload")
	}
	return nil
}
