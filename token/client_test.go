package token_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/azuretest"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/utils"
	"github.com/jrsteele09/go-azure-oauth2-client/token"
)

const (
	testClientID     = "11111111-2222-3333-4444-555555555555"
	testClientSecret = "client-secret"
	testTenantID     = "contoso.onmicrosoft.com"
	testRedirectURI  = "https://app.example.com/callback"
)

type testFixture struct {
	provider *azuretest.Provider
	client   *token.Client
	reg      *clients.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	provider := azuretest.NewProvider(t)
	return &testFixture{
		provider: provider,
		client: token.NewClient(
			token.WithLoginBaseURL(provider.URL()),
			token.WithGraphBaseURL(provider.URL()),
			token.WithTimeout(5*time.Second),
		),
		reg: &clients.Client{
			ClientID:     testClientID,
			ClientSecret: testClientSecret,
			TenantID:     testTenantID,
			IsValid:      true,
		},
	}
}

func TestEndpoint(t *testing.T) {
	ep := token.Endpoint("https://login.microsoftonline.com/", "common")
	require.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/authorize", ep.AuthURL)
	require.Equal(t, "https://login.microsoftonline.com/common/oauth2/v2.0/token", ep.TokenURL)
}

func TestExchangeCode(t *testing.T) {
	f := setupTestFixture(t)

	payload, err := f.client.ExchangeCode(context.Background(), f.reg, "code-1", testRedirectURI, "verifier-1")
	require.NoError(t, err)
	at, ok := payload.String("access_token")
	require.True(t, ok)
	require.Equal(t, "at-code-1", at)
	expiresIn, ok := payload.Int("expires_in")
	require.True(t, ok)
	require.Equal(t, 3599, expiresIn)

	calls := f.provider.TokenCalls()
	require.Len(t, calls, 1)
	require.Equal(t, testTenantID, calls[0].TenantID)
	form := calls[0].Form
	require.Equal(t, "authorization_code", form.Get("grant_type"))
	require.Equal(t, testClientID, form.Get("client_id"))
	require.Equal(t, testClientSecret, form.Get("client_secret"))
	require.Equal(t, "code-1", form.Get("code"))
	require.Equal(t, testRedirectURI, form.Get("redirect_uri"))
	require.Equal(t, "verifier-1", form.Get("code_verifier"))
}

func TestExchangeCode_NoVerifier(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.client.ExchangeCode(context.Background(), f.reg, "code-1", testRedirectURI, "")
	require.NoError(t, err)
	require.False(t, f.provider.TokenCalls()[0].Form.Has("code_verifier"))
}

func TestExchangeCode_Failures(t *testing.T) {
	tests := []struct {
		name     string
		response azuretest.Response
		provider bool
	}{
		{"provider error", azuretest.ErrorResponse(http.StatusBadRequest, "invalid_grant", "AADSTS70008: code expired"), true},
		{"error on HTTP 200", azuretest.ErrorResponse(http.StatusOK, "invalid_client", "bad secret"), true},
		{"invalid JSON", azuretest.Response{Raw: "<html>oops</html>"}, false},
		{"JSON array", azuretest.Response{Raw: "[]"}, false},
		{"missing access token", azuretest.Response{Body: map[string]any{"token_type": "Bearer"}}, false},
		{"empty access token", azuretest.Response{Body: map[string]any{"access_token": ""}}, false},
		{"server error without body", azuretest.Response{Status: http.StatusBadGateway, Raw: "{}"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.provider.SetTokenHandler(func(azuretest.TokenCall) azuretest.Response { return tt.response })

			_, err := f.client.ExchangeCode(context.Background(), f.reg, "code-1", testRedirectURI, "")
			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrAPI)

			var providerErr *token.ProviderError
			require.Equal(t, tt.provider, apperrors.As(err, &providerErr))
		})
	}
}

func TestExchangeCode_ProviderErrorFields(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.SetTokenHandler(func(azuretest.TokenCall) azuretest.Response {
		return azuretest.ErrorResponse(http.StatusBadRequest, "invalid_grant", "AADSTS70008: code expired")
	})

	_, err := f.client.ExchangeCode(context.Background(), f.reg, "code-1", testRedirectURI, "")
	var providerErr *token.ProviderError
	require.True(t, apperrors.As(err, &providerErr))
	require.Equal(t, "invalid_grant", providerErr.Code)
	require.Equal(t, "AADSTS70008: code expired", providerErr.Description)
	require.Equal(t, http.StatusBadRequest, providerErr.Status)
	require.NotContains(t, err.Error(), testClientSecret)
}

func TestRefresh(t *testing.T) {
	t.Run("without scope", func(t *testing.T) {
		f := setupTestFixture(t)
		payload, err := f.client.Refresh(context.Background(), f.reg, "rt-1")
		require.NoError(t, err)
		at, _ := payload.String("access_token")
		require.Equal(t, "at-refreshed-rt-1", at)

		form := f.provider.TokenCalls()[0].Form
		require.Equal(t, "refresh_token", form.Get("grant_type"))
		require.Equal(t, "rt-1", form.Get("refresh_token"))
		require.False(t, form.Has("scope"))
		require.False(t, form.Has("code"))
	})

	t.Run("with scope", func(t *testing.T) {
		f := setupTestFixture(t)
		f.reg.Scope = utils.Ptr("openid offline_access User.Read")
		_, err := f.client.Refresh(context.Background(), f.reg, "rt-1")
		require.NoError(t, err)
		require.Equal(t, "openid offline_access User.Read", f.provider.TokenCalls()[0].Form.Get("scope"))
	})

	t.Run("missing access token is not an error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.SetTokenHandler(func(azuretest.TokenCall) azuretest.Response {
			return azuretest.Response{Body: map[string]any{"expires_in": 10}}
		})
		_, err := f.client.Refresh(context.Background(), f.reg, "rt-1")
		require.NoError(t, err)
	})
}

func TestFetchUserInfo(t *testing.T) {
	f := setupTestFixture(t)

	payload, err := f.client.FetchUserInfo(context.Background(), "at-1")
	require.NoError(t, err)
	id, ok := payload.ObjectID()
	require.True(t, ok)
	require.Equal(t, azuretest.ObjectID, id)
	require.Equal(t, []string{"at-1"}, f.provider.UserInfoTokens())
}

func TestFetchUserInfo_GraphError(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.SetUserInfoHandler(func(string) azuretest.Response {
		return azuretest.Response{Status: http.StatusUnauthorized, Body: map[string]any{
			"error": map[string]any{"code": "InvalidAuthenticationToken", "message": "Access token has expired."},
		}}
	})

	_, err := f.client.FetchUserInfo(context.Background(), "stale")
	var providerErr *token.ProviderError
	require.True(t, apperrors.As(err, &providerErr))
	require.Equal(t, "InvalidAuthenticationToken", providerErr.Code)
	require.Equal(t, http.StatusUnauthorized, providerErr.Status)
}

func TestTransportFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.Server.Close()

	_, err := f.client.FetchUserInfo(context.Background(), "at-1")
	require.ErrorIs(t, err, apperrors.ErrAPI)
}
