package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/ausweis/pkg/api"
)

// WriteDenied writes the generic authentication failure: status 400 with
// no body and no content type. Every denial on the login, refresh, and
// confirmation routes goes through here so the responses stay
// byte-identical regardless of the underlying reason.
func WriteDenied(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
}

// WriteValidationProblem writes a 400 carrying the problem document. Used
// only where disclosure is safe: account creation and login linking.
func WriteValidationProblem(w http.ResponseWriter, p *api.ValidationProblem) {
	WriteJSON(w, http.StatusBadRequest, p)
}

// WriteServerError writes the opaque 500. The body is constant; whatever
// went wrong belongs in the log, not in the response.
func WriteServerError(w http.ResponseWriter) {
	WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
