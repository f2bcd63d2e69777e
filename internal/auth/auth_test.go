package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	apperr "chat-realtime/internal/errors"
	"chat-realtime/internal/models"
)

type directory map[string]models.User

func (d directory) FindUser(_ context.Context, id string) (models.User, error) {
	if u, ok := d[id]; ok {
		return u, nil
	}
	return models.User{}, apperr.ErrUserNotFound
}

type brokenDirectory struct{}

func (brokenDirectory) FindUser(context.Context, string) (models.User, error) {
	return models.User{}, errors.New("disk on fire")
}

func TestHMACRoundTrip(t *testing.T) {
	req := require.New(t)
	token, err := IssueToken("secret", "chat", "u1", "ada@example.com", time.Hour)
	req.NoError(err)

	claims, err := NewHMACVerifier("secret", "chat").Verify(token)
	req.NoError(err)
	req.Equal("u1", claims.Identity())
	req.Equal("ada@example.com", claims.Email)
}

func TestHMACRejects(t *testing.T) {
	valid, err := IssueToken("secret", "chat", "u1", "ada@example.com", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("secret", "chat", "u1", "ada@example.com", -time.Minute)
	require.NoError(t, err)
	otherIssuer, err := IssueToken("secret", "elsewhere", "u1", "ada@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		verifier *HMACVerifier
		token    string
	}{
		{"wrong secret", NewHMACVerifier("other", "chat"), valid},
		{"expired", NewHMACVerifier("secret", "chat"), expired},
		{"wrong issuer", NewHMACVerifier("secret", "chat"), otherIssuer},
		{"garbage", NewHMACVerifier("secret", "chat"), "not.a.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.verifier.Verify(tt.token)
			require.Error(t, err)
		})
	}
}

func TestServiceAuthenticate(t *testing.T) {
	users := directory{
		"u1": {Id: "u1", Email: "ada@example.com", DisplayName: "Ada", AvatarUrl: "data:image/png;base64,AA=="},
	}
	svc := NewService(NewHMACVerifier("secret", "chat"), users)
	ctx := context.Background()

	t.Run("bearer prefix accepted", func(t *testing.T) {
		req := require.New(t)
		token, err := IssueToken("secret", "chat", "u1", "ada@example.com", time.Hour)
		req.NoError(err)

		p, err := svc.Authenticate(ctx, "Bearer "+token)
		req.NoError(err)
		req.Equal(models.Principal{UserId: "u1", Email: "ada@example.com", DisplayName: "Ada", AvatarUrl: "data:image/png;base64,AA=="}, p)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "  ")
		require.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("unknown user", func(t *testing.T) {
		token, err := IssueToken("secret", "chat", "ghost", "ghost@example.com", time.Hour)
		require.NoError(t, err)
		_, err = svc.Authenticate(ctx, token)
		require.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("directory failure is not unauthorized", func(t *testing.T) {
		token, err := IssueToken("secret", "chat", "u1", "ada@example.com", time.Hour)
		require.NoError(t, err)
		_, err = NewService(NewHMACVerifier("secret", "chat"), brokenDirectory{}).Authenticate(ctx, token)
		require.Error(t, err)
		require.NotErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestExtractTokenFromRequest(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	req.Equal("abc", ExtractTokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer xyz")
	req.Equal("xyz", ExtractTokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Empty(ExtractTokenFromRequest(r))
}

func TestJWKSVerifier(t *testing.T) {
	req := require.New(t)
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	req.NoError(err)

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JWKS{Keys: []JWK{{
			Kid: "k1",
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})

	verifier, err := NewJWKSVerifier(context.Background(), srv.URL, slog.Default())
	req.NoError(err)

	sign := func(kid, issuer string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "kp_123",
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		token.Header["kid"] = kid
		s, err := token.SignedString(key)
		req.NoError(err)
		return s
	}

	claims, err := verifier.Verify(sign("k1", srv.URL))
	req.NoError(err)
	req.Equal("kp_123", claims.Identity())

	_, err = verifier.Verify(sign("unknown", srv.URL))
	req.Error(err)

	_, err = verifier.Verify(sign("k1", "https://someone-else"))
	req.Error(err)
}

func TestJWKSVerifierFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewJWKSVerifier(context.Background(), srv.URL, slog.Default())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), fmt.Sprint(http.StatusNotFound)))
}

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("correct horse battery staple")
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword("correct horse battery staple", hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("wrong", hash)
	req.NoError(err)
	req.False(match)

	_, err = ComparePassword("anything", "plain")
	req.Error(err)
}
