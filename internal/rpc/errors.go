package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"syscall"
)

// Errores de transporte. Siempre se envuelven con %w; usar errors.Is.
var (
	ErrTimeout        = errors.New("rpc: timeout waiting for reply")
	ErrChannelClosed  = errors.New("rpc: broker channel closed")
	ErrTransport      = errors.New("rpc: transport failure")
	ErrUnknownPattern = errors.New("rpc: unknown pattern")
	ErrNoHandler      = errors.New("rpc: no handler for pattern")
)

// Error es el resultado de error normalizado de una llamada: {message, status}.
// Es lo único que ve la capa de presentación.
type Error struct {
	Message   string
	Status    int
	Transient bool
	Pattern   Pattern
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Pattern, e.Message, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError crea un error de aplicación con status explícito.
func NewError(status int, message string) *Error {
	return &Error{Message: message, Status: status, Transient: status >= 500 && status < 600}
}

// Remote crea el error reportado por un handler downstream. status 0 = sin status.
func Remote(status int, message string) *Error {
	return &Error{Message: message, Status: status, Transient: status >= 500 && status < 600}
}

// Conflict es el error de coordinación (lock tomado).
func Conflict(message string) *Error {
	return NewError(http.StatusConflict, message)
}

var closeMsgRe = regexp.MustCompile(`(?i)channel closed|unexpected close|socket closed|connection closed`)

// IsTransient clasifica el error: timeouts, errores de red y de canal del broker,
// y cualquier error con status 5xx se reintentan; el resto no.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Transient || (re.Status >= 500 && re.Status < 600)
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrChannelClosed) || errors.Is(err, ErrTransport) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return closeMsgRe.MatchString(err.Error())
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// AsError normaliza cualquier error a *Error:
//   - *Error existente: se conserva su status (0 => 400).
//   - timeout/cancelación: 504.
//   - otros fallos de transporte: 502.
//   - cualquier otro error: 400 con su mensaje.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		out := *re
		if out.Status == 0 {
			out.Status = http.StatusBadRequest
		}
		return &out
	}
	switch {
	case isTimeout(err):
		return &Error{Message: "Gateway Timeout: " + err.Error(), Status: http.StatusGatewayTimeout, Transient: true, Cause: err}
	case IsTransient(err):
		return &Error{Message: "Bad Gateway: " + err.Error(), Status: http.StatusBadGateway, Transient: true, Cause: err}
	default:
		return &Error{Message: err.Error(), Status: http.StatusBadRequest, Cause: err}
	}
}

// StatusOf devuelve el status HTTP equivalente del error.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return AsError(err).Status
}
