package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"fleetops/internal/apperr"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError renders err as a problem document with the status of its kind.
// Internal failures are logged; their cause never reaches the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		s.Log.WithContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	status := kind.HTTPStatus()
	writeProblem(w, status, http.StatusText(status), apperr.Message(err), r.URL.Path)
}

// decodeJSON reads the request body into v. Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("Request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.BadRequestWrap(err, "Malformed JSON request body: "+err.Error())
	}
	return nil
}
