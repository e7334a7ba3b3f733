package helpers

import (
	"net/http"
	"time"
)

const (
	RefreshCookieName = "refreshToken"
	refreshCookieAge  = 30 * 24 * time.Hour
)

// SetRefreshCookie deja el refresh token en una cookie httpOnly.
// En prod va Secure + SameSite=None (front en otro origen), en dev Lax.
func SetRefreshCookie(w http.ResponseWriter, token string, prod bool) {
	if token == "" {
		return
	}
	c := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   prod,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(refreshCookieAge.Seconds()),
		Expires:  time.Now().Add(refreshCookieAge),
	}
	if prod {
		c.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, c)
}

// ClearRefreshCookie borra la cookie de refresh.
func ClearRefreshCookie(w http.ResponseWriter, prod bool) {
	c := &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   prod,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	}
	if prod {
		c.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, c)
}
