// Package auth resolves the caller of a request from a bearer token issued by
// the account service.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims is the payload of access tokens.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Parse validates an HS256 token and returns the caller it identifies.
func (v *Verifier) Parse(tokenString string) (Caller, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Caller{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Caller{}, ErrInvalidToken
	}

	return Caller{
		UserID: claims.Subject,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   claims.Role,
	}, nil
}

// Issue signs a token for caller. The account service owns issuance in
// production; this is used by tests and local tooling.
func (v *Verifier) Issue(caller Caller, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email: caller.Email,
		Name:  caller.Name,
		Role:  caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
