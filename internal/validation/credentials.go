// Package validation valida los bodies de registro y login antes de tocar
// el broker. Los servicios downstream vuelven a validar.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Reglas de email: local-part sin espacios ni '@', dominio con al menos un
// punto y TLD alfabético de 2+ letras. Largo total <= 254.
var emailRe = regexp.MustCompile(`^[^\s@]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]*[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)

const (
	PasswordMin = 6
	PasswordMax = 16
	maxEmailLen = 254
)

var (
	ErrEmail    = errors.New("email must be an email")
	ErrPassword = errors.New("password must be between 6 and 16 characters")
	ErrName     = errors.New("name must be a string")
)

// ValidEmail reporta si s parece un email (ya recortado).
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) <= maxEmailLen && emailRe.MatchString(s)
}

// ValidPassword cuenta runas, no bytes.
func ValidPassword(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= PasswordMin && n <= PasswordMax
}

// Registration valida email, password y que name no sea solo espacios si vino.
func Registration(email, name, password string) error {
	var errs []error
	if !ValidEmail(email) {
		errs = append(errs, ErrEmail)
	}
	if name != "" && strings.TrimSpace(name) == "" {
		errs = append(errs, ErrName)
	}
	if !ValidPassword(password) {
		errs = append(errs, ErrPassword)
	}
	return errors.Join(errs...)
}

// Login valida el par de credenciales.
func Login(email, password string) error {
	var errs []error
	if !ValidEmail(email) {
		errs = append(errs, ErrEmail)
	}
	if !ValidPassword(password) {
		errs = append(errs, ErrPassword)
	}
	return errors.Join(errs...)
}

// Message aplana un error de validación en una línea: "a; b".
func Message(err error) string {
	if err == nil {
		return ""
	}
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
