package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	httperrors "github.com/dropDatabas3/gateway/internal/http/errors"
)

const maxBody = 1 << 20

// ReadJSON decodifica el body (máx 1MB). Devuelve false si ya escribió el error.
// Un body vacío deja v sin tocar.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if r.ContentLength != 0 && ct != "" && !strings.Contains(ct, "application/json") {
		httperrors.WriteError(w, httperrors.New(http.StatusUnsupportedMediaType, "Content-Type must be application/json"))
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httperrors.WriteError(w, httperrors.New(http.StatusRequestEntityTooLarge, "Request body too large"))
			return false
		}
		httperrors.WriteError(w, httperrors.Wrap(err, http.StatusBadRequest, "Invalid JSON body"))
		return false
	}
	return true
}

// WriteJSON escribe una respuesta JSON.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// PathID lee un parámetro de ruta entero positivo. Devuelve false si ya escribió 400.
func PathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httperrors.WriteError(w, httperrors.New(http.StatusBadRequest, "Validation failed (numeric string is expected)"))
		return 0, false
	}
	return id, true
}
