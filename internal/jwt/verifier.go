// Package jwt verifica access tokens emitidos por el servicio de auth.
//
// El gateway no firma tokens: solo valida firma (RS256 o EdDSA, según la clave
// pública configurada), exp/nbf con tolerancia e iss opcional. Sin clave
// configurada se delega la validación al servicio de auth por RPC.
package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dropDatabas3/gateway/internal/downstream"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("jwt: missing token")
	ErrExpired      = errors.New("jwt: token expired")
	ErrInvalid      = errors.New("jwt: invalid token")
)

const leeway = 30 * time.Second

// Claims son los datos del usuario que viajan en el access token.
type Claims struct {
	UserID    int64
	Name      string
	Email     string
	Jti       string
	ExpiresAt time.Time
}

// AccessVerifier valida un access token.
type AccessVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// Verifier valida localmente con la clave pública del servicio de auth.
type Verifier struct {
	key     any
	methods []string
	issuer  string
}

// NewVerifier parsea una clave pública PEM (RSA o Ed25519).
func NewVerifier(publicKeyPEM []byte, issuer string) (*Verifier, error) {
	if rsaKey, err := jwtv5.ParseRSAPublicKeyFromPEM(publicKeyPEM); err == nil {
		return &Verifier{key: rsaKey, methods: []string{"RS256", "RS384", "RS512"}, issuer: issuer}, nil
	}
	edKey, err := jwtv5.ParseEdPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("jwt: unsupported public key: %w", err)
	}
	return &Verifier{key: edKey, methods: []string{"EdDSA"}, issuer: issuer}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMissingToken
	}
	opts := []jwtv5.ParserOption{jwtv5.WithValidMethods(v.methods), jwtv5.WithLeeway(leeway), jwtv5.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(v.issuer))
	}
	tok, err := jwtv5.Parse(token, func(t *jwtv5.Token) (any, error) {
		switch k := v.key.(type) {
		case *rsa.PublicKey:
			return k, nil
		case ed25519.PublicKey:
			return k, nil
		default:
			return nil, errors.New("jwt: no key")
		}
	}, opts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok || !tok.Valid {
		return Claims{}, ErrInvalid
	}
	return claimsFromMap(mc)
}

func claimsFromMap(mc jwtv5.MapClaims) (Claims, error) {
	var c Claims
	switch sub := mc["sub"].(type) {
	case float64:
		c.UserID = int64(sub)
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return Claims{}, fmt.Errorf("%w: sub %q is not a user id", ErrInvalid, sub)
		}
		c.UserID = id
	default:
		return Claims{}, fmt.Errorf("%w: missing sub", ErrInvalid)
	}
	c.Name, _ = mc["name"].(string)
	c.Email, _ = mc["email"].(string)
	c.Jti, _ = mc["jti"].(string)
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// AccessValidator es la parte del cliente de auth que valida tokens.
type AccessValidator interface {
	ValidateAccess(ctx context.Context, token string) (downstream.AccessClaims, error)
}

// RemoteVerifier delega en auth.validateAccess.
type RemoteVerifier struct{ auth AccessValidator }

func NewRemoteVerifier(a AccessValidator) *RemoteVerifier { return &RemoteVerifier{auth: a} }

func (r *RemoteVerifier) Verify(ctx context.Context, token string) (Claims, error) {
	if token == "" {
		return Claims{}, ErrMissingToken
	}
	ac, err := r.auth.ValidateAccess(ctx, token)
	if err != nil {
		return Claims{}, err
	}
	c := Claims{UserID: ac.Sub, Name: ac.Name, Email: ac.Email, Jti: ac.Jti}
	if ac.Exp > 0 {
		c.ExpiresAt = time.Unix(ac.Exp, 0)
		if time.Now().After(c.ExpiresAt.Add(leeway)) {
			return Claims{}, ErrExpired
		}
	}
	return c, nil
}
