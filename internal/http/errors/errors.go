// Package errors define el contrato de error HTTP del gateway.
//
// Todo error que llega a un handler termina como {message, statusCode, error},
// el mismo cuerpo que devolvía el filtro rpc->http del gateway anterior.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gateway/internal/rpc"
)

// AppError es un error con status HTTP listo para serializar.
type AppError struct {
	Message    string `json:"message"`
	HTTPStatus int    `json:"statusCode"`
	Err        error  `json:"-"` // causa original, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.HTTPStatus, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.HTTPStatus, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// New crea un AppError.
func New(status int, message string) *AppError {
	return &AppError{Message: message, HTTPStatus: status}
}

// Wrap crea un AppError conservando la causa.
func Wrap(err error, status int, message string) *AppError {
	return &AppError{Message: message, HTTPStatus: status, Err: err}
}

var (
	ErrUnauthorized = New(http.StatusUnauthorized, "Authentication required")
	ErrTokenExpired = New(http.StatusUnauthorized, "Token expired")
	ErrForbidden    = New(http.StatusForbidden, "Forbidden")
	ErrNotFound     = New(http.StatusNotFound, "Not Found")
	ErrInternal     = New(http.StatusInternalServerError, "Internal Server Error")
)

// WithCause devuelve una copia con la causa.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// FromError convierte cualquier error en AppError. Los errores de la capa de
// orquestación pasan por rpc.AsError, que ya decide 4xx/502/504.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	re := rpc.AsError(err)
	return &AppError{Message: re.Message, HTTPStatus: re.Status, Err: err}
}

// ReasonName es el nombre del status estilo NOT_FOUND / BAD_GATEWAY.
func ReasonName(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "Error"
	}
	text = strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text)
	return strings.ToUpper(text)
}

type errorResponse struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
}

// WriteError escribe el error como JSON.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)
	if appErr == nil {
		appErr = ErrInternal
	}
	status := appErr.HTTPStatus
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Message:    appErr.Message,
		StatusCode: status,
		Error:      ReasonName(status),
	})
}
