package helpers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKid = "test-key-1"

func newJWKSFixture(t *testing.T) (*rsa.PrivateKey, *httptest.Server) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	doc := jwksDocument{Keys: []jwksKey{{
		Kty: "RSA",
		Kid: testKid,
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return key, srv
}

func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	key, srv := newJWKSFixture(t)
	v := NewJWKSVerifier("https://issuer.example.com/", "api://lumenchat", srv.URL, time.Minute)

	tokenStr := signTestToken(t, key, testKid, jwt.MapClaims{
		"iss":   "https://issuer.example.com/",
		"aud":   "api://lumenchat",
		"sub":   "auth0|abc123",
		"email": "user@example.com",
		"name":  "Test User",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "auth0|abc123", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.Equal(t, "Test User", claims.Name)
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	key, srv := newJWKSFixture(t)
	v := NewJWKSVerifier("https://issuer.example.com/", "api://lumenchat", srv.URL, time.Minute)

	tokenStr := signTestToken(t, key, testKid, jwt.MapClaims{
		"iss": "https://issuer.example.com/",
		"aud": "api://someone-else",
		"sub": "auth0|abc123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), tokenStr)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key, srv := newJWKSFixture(t)
	v := NewJWKSVerifier("https://issuer.example.com/", "api://lumenchat", srv.URL, time.Minute)

	tokenStr := signTestToken(t, key, testKid, jwt.MapClaims{
		"iss": "https://issuer.example.com/",
		"aud": "api://lumenchat",
		"sub": "auth0|abc123",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), tokenStr)
	assert.Error(t, err)
}

func TestVerifyRejectsUnknownKid(t *testing.T) {
	key, srv := newJWKSFixture(t)
	v := NewJWKSVerifier("https://issuer.example.com/", "api://lumenchat", srv.URL, time.Minute)

	tokenStr := signTestToken(t, key, "rotated-away", jwt.MapClaims{
		"iss": "https://issuer.example.com/",
		"aud": "api://lumenchat",
		"sub": "auth0|abc123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), tokenStr)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSigningKey(t *testing.T) {
	_, srv := newJWKSFixture(t)
	v := NewJWKSVerifier("https://issuer.example.com/", "api://lumenchat", srv.URL, time.Minute)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokenStr := signTestToken(t, otherKey, testKid, jwt.MapClaims{
		"iss": "https://issuer.example.com/",
		"aud": "api://lumenchat",
		"sub": "auth0|abc123",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(context.Background(), tokenStr)
	assert.Error(t, err)
}
