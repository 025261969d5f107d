// Package azuretest runs a fake Azure AD token endpoint and Graph /me endpoint for tests.
package azuretest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
)

const (
	ObjectID          = "00000000-0000-0000-0000-0000000000a1"
	UserPrincipalName = "ada@contoso.onmicrosoft.com"
	DisplayName       = "Ada Lovelace"
	Mail              = "ada@contoso.com"
)

// Response is a canned reply. Raw, when set, is written verbatim instead of Body.
type Response struct {
	Status int
	Body   any
	Raw    string
}

// TokenCall records one request to the token endpoint.
type TokenCall struct {
	TenantID string
	Form     url.Values
}

// Provider serves both the login authority and Graph from one httptest server.
type Provider struct {
	Server *httptest.Server

	mu              sync.Mutex
	tokenHandler    func(call TokenCall) Response
	userInfoHandler func(accessToken string) Response
	tokenCalls      []TokenCall
	userInfoTokens  []string
}

func NewProvider(t *testing.T) *Provider {
	t.Helper()
	p := &Provider{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{tenant}/oauth2/v2.0/token", p.handleToken)
	mux.HandleFunc("GET /v1.0/me", p.handleUserInfo)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

// URL is both the login base URL and the Graph base URL.
func (p *Provider) URL() string {
	return p.Server.URL
}

// SetTokenHandler overrides the token endpoint reply.
func (p *Provider) SetTokenHandler(h func(call TokenCall) Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenHandler = h
}

// SetUserInfoHandler overrides the Graph /me reply.
func (p *Provider) SetUserInfoHandler(h func(accessToken string) Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userInfoHandler = h
}

func (p *Provider) TokenCalls() []TokenCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TokenCall(nil), p.tokenCalls...)
}

func (p *Provider) UserInfoTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.userInfoTokens...)
}

func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	call := TokenCall{TenantID: r.PathValue("tenant"), Form: r.PostForm}
	p.mu.Lock()
	p.tokenCalls = append(p.tokenCalls, call)
	handler := p.tokenHandler
	p.mu.Unlock()

	if handler == nil {
		handler = DefaultTokenResponse
	}
	write(w, handler(call))
}

func (p *Provider) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	accessToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	p.mu.Lock()
	p.userInfoTokens = append(p.userInfoTokens, accessToken)
	handler := p.userInfoHandler
	p.mu.Unlock()

	if handler == nil {
		handler = DefaultUserInfoResponse
	}
	write(w, handler(accessToken))
}

// DefaultTokenResponse issues tokens derived from the code or refresh token so tests can
// tell which exchange produced them.
func DefaultTokenResponse(call TokenCall) Response {
	switch call.Form.Get("grant_type") {
	case "authorization_code":
		code := call.Form.Get("code")
		return Response{Status: http.StatusOK, Body: map[string]any{
			"token_type":    "Bearer",
			"access_token":  "at-" + code,
			"refresh_token": "rt-" + code,
			"id_token":      "idt-" + code,
			"expires_in":    3599,
			"scope":         "openid profile email User.Read",
		}}
	case "refresh_token":
		return Response{Status: http.StatusOK, Body: map[string]any{
			"token_type":    "Bearer",
			"access_token":  "at-refreshed-" + call.Form.Get("refresh_token"),
			"refresh_token": "rt-rotated",
			"expires_in":    "3600",
		}}
	}
	return ErrorResponse(http.StatusBadRequest, "unsupported_grant_type", "grant type not supported")
}

// PKCETokenHandler rejects code exchanges whose code_verifier does not match challenge,
// as Azure AD does, and otherwise behaves like DefaultTokenResponse.
func PKCETokenHandler(challenge string, method oauth2.CodeMethodType) func(call TokenCall) Response {
	return func(call TokenCall) Response {
		if call.Form.Get("grant_type") == string(oauth2.AuthorizationCodeGrant) &&
			!oauth2.VerifyCodeChallenge(challenge, call.Form.Get("code_verifier"), method) {
			return ErrorResponse(http.StatusBadRequest, "invalid_grant",
				"AADSTS501481: The Code_Verifier does not match the code_challenge supplied in the authorization request.")
		}
		return DefaultTokenResponse(call)
	}
}

func DefaultUserInfoResponse(string) Response {
	return Response{Status: http.StatusOK, Body: map[string]any{
		"@odata.context":    "https://graph.microsoft.com/v1.0/$metadata#users/$entity",
		"id":                ObjectID,
		"userPrincipalName": UserPrincipalName,
		"displayName":       DisplayName,
		"givenName":         "Ada",
		"surname":           "Lovelace",
		"mail":              Mail,
		"mobilePhone":       nil,
		"officeLocation":    "London",
		"preferredLanguage": "en-GB",
		"jobTitle":          "Analyst",
		"businessPhones":    []string{},
	}}
}

// ErrorResponse is an Azure AD token endpoint error body.
func ErrorResponse(status int, code, description string) Response {
	return Response{Status: status, Body: map[string]any{
		"error":             code,
		"error_description": description,
	}}
}

func write(w http.ResponseWriter, resp Response) {
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if resp.Raw != "" {
		_, _ = w.Write([]byte(resp.Raw))
		return
	}
	_ = json.NewEncoder(w).Encode(resp.Body)
}
