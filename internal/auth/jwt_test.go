package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/auth"
	"courier/internal/domain"
	"courier/internal/domain/types"
)

func TestJWT_IssueVerify(t *testing.T) {
	j, err := auth.NewJWT("s3cret", "courier")
	require.NoError(t, err)

	tok, err := j.Issue(domain.Principal{UserID: "alice", Role: types.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	p, err := j.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("alice"), p.UserID)
	assert.True(t, p.IsAdmin())
}

func TestJWT_Rejects(t *testing.T) {
	j, err := auth.NewJWT("s3cret", "courier")
	require.NoError(t, err)
	other, err := auth.NewJWT("other", "courier")
	require.NoError(t, err)
	wrongIssuer, err := auth.NewJWT("s3cret", "elsewhere")
	require.NoError(t, err)

	alice := domain.Principal{UserID: "alice", Role: types.RoleMember}

	_, err = j.Verify("")
	assert.ErrorIs(t, err, auth.ErrMissingToken)

	forged, _ := other.Issue(alice, time.Hour)
	_, err = j.Verify(forged)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expired, _ := j.Issue(alice, -time.Minute)
	_, err = j.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)

	misissued, _ := wrongIssuer.Issue(alice, time.Hour)
	_, err = j.Verify(misissued)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	_, err = j.Verify(unsigned)
	assert.Error(t, err)
}

func TestJWT_RejectsUnknownRole(t *testing.T) {
	j, err := auth.NewJWT("s3cret", "")
	require.NoError(t, err)
	tok, err := j.Issue(domain.Principal{UserID: "alice", Role: "superuser"}, time.Hour)
	require.NoError(t, err)
	_, err = j.Verify(tok)
	assert.ErrorIs(t, err, auth.ErrInvalidClaims)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, "q", auth.TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", auth.TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: "auth_token", Value: "c"})
	assert.Equal(t, "c", auth.TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	j, err := auth.NewJWT("s3cret", "")
	require.NoError(t, err)

	var seen domain.Principal
	h := auth.Middleware(j, func(w http.ResponseWriter, _ *http.Request, err error) {
		assert.True(t, types.IsKind(err, types.KindUnauthenticated))
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.PrincipalFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, _ := j.Issue(domain.Principal{UserID: "bob"}, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.UserID("bob"), seen.UserID)
	assert.Equal(t, types.RoleMember, seen.Role)
}
