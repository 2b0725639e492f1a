// Package auth verifies bearer tokens and turns them into domain principals.
//
// Tokens are HS256 JWTs whose subject is the user id and whose "role" claim
// is either "member" or "admin". The same verifier guards the REST surface
// and the realtime handshake.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"courier/internal/domain"
	"courier/internal/domain/types"
)

var (
	ErrMissingToken  = errors.New("missing authentication token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Claims are the JWT claims understood by the server.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWT signs and validates HS256 tokens.
type JWT struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWT returns a JWT verifier/issuer for secret. An empty issuer disables
// the issuer check.
func NewJWT(secret, issuer string) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("auth: secret key required for HS256")
	}
	return &JWT{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Verify validates token and returns the principal it names.
func (j *JWT) Verify(token string) (domain.Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return domain.Principal{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, ErrExpiredToken
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.Principal{}, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}

	role := types.RoleMember
	switch types.Role(claims.Role) {
	case "", types.RoleMember:
	case types.RoleAdmin:
		role = types.RoleAdmin
	default:
		return domain.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, claims.Role)
	}
	return domain.Principal{UserID: domain.UserID(claims.Subject), Role: role}, nil
}

// Issue signs a token for p valid for ttl.
func (j *JWT) Issue(p domain.Principal, ttl time.Duration) (string, error) {
	now := j.now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// the "token" query parameter or the auth_token cookie, in that order.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie("auth_token"); err == nil {
		return c.Value
	}
	return ""
}

// AsDomainError maps a verification failure onto the domain taxonomy.
func AsDomainError(err error) error {
	if err == nil {
		return nil
	}
	return types.NewError(types.KindUnauthenticated, "auth.Verify", err.Error(), err)
}
