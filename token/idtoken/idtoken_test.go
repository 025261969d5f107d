package idtoken_test

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/token/idtoken"
)

const (
	loginBase = "https://login.microsoftonline.com"
	tenantID  = "72f988bf-86f1-41af-91ab-2d7cd011db47"
	clientID  = "11111111-2222-3333-4444-555555555555"
)

type testFixture struct {
	key      *rsa.PrivateKey
	now      time.Time
	verifier *idtoken.Verifier
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &testFixture{
		key: key,
		now: now,
		verifier: idtoken.NewVerifier(loginBase,
			idtoken.WithKeySet(&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}),
			idtoken.WithNowTime(func() time.Time { return now }),
		),
	}
}

func (f *testFixture) sign(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-key"
	raw, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func (f *testFixture) claims(tid string) jwtlib.MapClaims {
	return jwtlib.MapClaims{
		"iss":                loginBase + "/" + tid + "/v2.0",
		"aud":                clientID,
		"sub":                "subject-1",
		"oid":                "object-1",
		"tid":                tid,
		"preferred_username": "ada@contoso.com",
		"name":               "Ada Lovelace",
		"iat":                f.now.Add(-time.Minute).Unix(),
		"exp":                f.now.Add(time.Hour).Unix(),
	}
}

func TestVerify_TenantGUID(t *testing.T) {
	f := setupTestFixture(t)
	reg := &clients.Client{ClientID: clientID, TenantID: tenantID}

	claims, err := f.verifier.Verify(context.Background(), reg, f.sign(t, f.claims(tenantID)))
	require.NoError(t, err)
	require.Equal(t, "object-1", claims.ObjectID)
	require.Equal(t, "ada@contoso.com", claims.PreferredUsername)
	require.Equal(t, tenantID, claims.TenantID)
}

func TestVerify_DomainTenantUsesTidIssuer(t *testing.T) {
	f := setupTestFixture(t)
	reg := &clients.Client{ClientID: clientID, TenantID: "contoso.onmicrosoft.com"}

	_, err := f.verifier.Verify(context.Background(), reg, f.sign(t, f.claims(tenantID)))
	require.NoError(t, err)

	bad := f.claims(tenantID)
	bad["iss"] = "https://evil.example.com/" + tenantID + "/v2.0"
	_, err = f.verifier.Verify(context.Background(), reg, f.sign(t, bad))
	require.ErrorIs(t, err, apperrors.ErrAPI)
}

func TestVerify_Rejects(t *testing.T) {
	f := setupTestFixture(t)
	reg := &clients.Client{ClientID: clientID, TenantID: tenantID}

	t.Run("wrong audience", func(t *testing.T) {
		c := f.claims(tenantID)
		c["aud"] = "someone-else"
		_, err := f.verifier.Verify(context.Background(), reg, f.sign(t, c))
		require.ErrorIs(t, err, apperrors.ErrAPI)
	})

	t.Run("expired", func(t *testing.T) {
		c := f.claims(tenantID)
		c["exp"] = f.now.Add(-time.Minute).Unix()
		_, err := f.verifier.Verify(context.Background(), reg, f.sign(t, c))
		require.ErrorIs(t, err, apperrors.ErrAPI)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := f.claims("00000000-0000-0000-0000-000000000000")
		_, err := f.verifier.Verify(context.Background(), reg, f.sign(t, c))
		require.ErrorIs(t, err, apperrors.ErrAPI)
	})

	t.Run("signed by another key", func(t *testing.T) {
		other := setupTestFixture(t)
		_, err := f.verifier.Verify(context.Background(), reg, other.sign(t, f.claims(tenantID)))
		require.ErrorIs(t, err, apperrors.ErrAPI)
	})
}

func TestDecode(t *testing.T) {
	f := setupTestFixture(t)

	claims, err := idtoken.Decode(f.sign(t, f.claims(tenantID)))
	require.NoError(t, err)
	require.Equal(t, "object-1", claims.ObjectID)
	require.Equal(t, "Ada Lovelace", claims.Name)
	require.Equal(t, jwtlib.ClaimStrings{clientID}, claims.Audience)

	_, err = idtoken.Decode("not-a-jwt")
	require.Error(t, err)
}
