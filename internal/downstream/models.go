package downstream

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// User es el registro del servicio de usuarios.
type User struct {
	ID              int64   `json:"id"`
	Sub             int64   `json:"sub,omitempty"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	ContributionIDs []int64 `json:"contributionIds"`
}

// withSub replica id en sub (los tokens usan sub como id de usuario).
func (u User) withSub() User {
	u.Sub = u.ID
	return u
}

type CreateUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type UpdateUser struct {
	ID    int64   `json:"id"`
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// Tokens es el par emitido por el servicio de auth. Los TTL vienen en segundos.
type Tokens struct {
	AccessToken   string `json:"accessToken"`
	RefreshToken  string `json:"refreshToken"`
	AccessJti     string `json:"accessJti"`
	RefreshJti    string `json:"refreshJti"`
	AccessTTLSec  int64  `json:"accessTtlSec"`
	RefreshTTLSec int64  `json:"refreshTtlSec"`
}

// AccessClaims es lo que devuelve auth.validateAccess.
type AccessClaims struct {
	Sub   int64  `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Jti   string `json:"jti"`
	Exp   int64  `json:"exp"`
}

type Contribution struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
	AuthorID    int64  `json:"authorId"`
	AuthorName  string `json:"authorName"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type ContributionList struct {
	Items []Contribution `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type CreateContribution struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt,omitempty"`
	AuthorID    int64  `json:"authorId"`
	AuthorName  string `json:"authorName"`
}

type UpdateContribution struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	PublishedAt *string `json:"publishedAt,omitempty"`
}

// Removed es la respuesta de los remove.
type Removed struct {
	ID int64 `json:"id"`
}

// ListContributionsQuery son los filtros de contributions.getAll. Cero = no enviado.
type ListContributionsQuery struct {
	Page          int    `json:"page,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	AuthorID      int64  `json:"authorId,omitempty"`
	PublishedFrom string `json:"publishedFrom,omitempty"`
	PublishedTo   string `json:"publishedTo,omitempty"`
}

// ParseListQuery lee los filtros desde la query string HTTP y los valida.
func ParseListQuery(v url.Values) (ListContributionsQuery, error) {
	var q ListContributionsQuery
	var errs []error
	intField := func(name string, min, max int) int {
		s := strings.TrimSpace(v.Get(name))
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		switch {
		case err != nil:
			errs = append(errs, errors.New(name+" must be an integer"))
		case n < min:
			errs = append(errs, errors.New(name+" must be >= "+strconv.Itoa(min)))
		case max > 0 && n > max:
			errs = append(errs, errors.New(name+" must be <= "+strconv.Itoa(max)))
		}
		return n
	}
	q.Page = intField("page", 1, 0)
	q.Limit = intField("limit", 1, 100)
	q.AuthorID = int64(intField("authorId", 1, 0))
	q.PublishedFrom = strings.TrimSpace(v.Get("publishedFrom"))
	q.PublishedTo = strings.TrimSpace(v.Get("publishedTo"))
	for _, d := range []struct{ name, val string }{{"publishedFrom", q.PublishedFrom}, {"publishedTo", q.PublishedTo}} {
		if d.val != "" && !isDate(d.val) {
			errs = append(errs, errors.New("invalid date "+d.name))
		}
	}
	return q, errors.Join(errs...)
}

func isDate(s string) bool {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Values serializa los filtros presentes; base de la key de cache de la lista.
func (q ListContributionsQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.AuthorID > 0 {
		v.Set("authorId", strconv.FormatInt(q.AuthorID, 10))
	}
	if q.PublishedFrom != "" {
		v.Set("publishedFrom", q.PublishedFrom)
	}
	if q.PublishedTo != "" {
		v.Set("publishedTo", q.PublishedTo)
	}
	return v
}
