package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/oauthmodel"
	"github.com/jrsteele09/go-azure-oauth2-client/token"
)

// Error codes returned in JSON error bodies
const (
	errorMissingParameters = "missing_parameters"
	errorInvalidState      = "invalid_state"
	errorOAuth2            = "oauth2_error"
	errorInvalidRequest    = "invalid_request"
	errorConfiguration     = "configuration_error"
	errorInternal          = "internal_error"

	internalErrorDescription     = "An internal error occurred"
	invalidResponseDescription   = "Azure AD returned an invalid response"
	configurationGoneDescription = "The Azure OAuth2 configuration for this request is no longer available"
)

// LoginHandler starts the authorization code flow and redirects the browser to Azure AD.
// Optional query parameters: code_challenge, code_challenge_method, tenant_id.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := s.sessionID(w, r)
		query := r.URL.Query()

		authURL, err := s.auth.GenerateAuthorizationURL(r.Context(), oauthmodel.AuthorizationRequest{
			SessionID:           &sessionID,
			CodeChallenge:       optionalParam(query.Get("code_challenge")),
			CodeChallengeMethod: optionalParam(query.Get("code_challenge_method")),
			TenantID:            optionalParam(query.Get("tenant_id")),
		})
		switch {
		case err == nil:
			http.Redirect(w, r, authURL, http.StatusFound)
		case apperrors.Is(err, apperrors.ErrValidation):
			writeJSONError(w, errorInvalidRequest, err.Error(), http.StatusBadRequest)
		case apperrors.Is(err, apperrors.ErrConfiguration):
			log.Warn().Err(err).Msg("login: no usable configuration")
			writeJSONError(w, errorConfiguration, "No valid Azure OAuth2 configuration found", http.StatusServiceUnavailable)
		default:
			log.Err(err).Msg("login: failed to build authorization url")
			writeJSONError(w, errorInternal, internalErrorDescription, http.StatusInternalServerError)
		}
	}
}

// CallbackHandler consumes the authorization response and reports the signed-in user.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		code := r.FormValue("code")
		state := r.FormValue("state")

		if errorParam := r.FormValue("error"); errorParam != "" {
			description := r.FormValue("error_description")
			if description == "" {
				description = "Unknown error"
			}
			writeJSONError(w, errorParam, description, http.StatusBadRequest)
			return
		}

		if code == "" || state == "" {
			writeJSONError(w, errorMissingParameters, "Missing required parameters: code or state", http.StatusBadRequest)
			return
		}

		user, err := s.auth.HandleCallback(r.Context(), code, state)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"user":    user.PublicProfile(),
			})
		case apperrors.Is(err, apperrors.ErrInvalidState):
			writeJSONError(w, errorInvalidState, apperrors.ErrInvalidState.Error(), http.StatusBadRequest)
		case apperrors.Is(err, apperrors.ErrAPI), apperrors.Is(err, apperrors.ErrConfiguration):
			log.Warn().Err(err).Msg("callback: authorization failed")
			writeJSONError(w, errorOAuth2, oauth2ErrorDescription(err), http.StatusBadRequest)
		default:
			log.Err(err).Msg("callback: unexpected failure")
			writeJSONError(w, errorInternal, internalErrorDescription, http.StatusInternalServerError)
		}
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"app":    s.config.GetAppName(),
		})
	}
}

// oauth2ErrorDescription reports what Azure AD said, never the internal error chain.
func oauth2ErrorDescription(err error) string {
	var providerErr *token.ProviderError
	switch {
	case apperrors.As(err, &providerErr):
		if providerErr.Description == "" {
			return providerErr.Code
		}
		return providerErr.Code + ": " + providerErr.Description
	case apperrors.Is(err, apperrors.ErrConfiguration):
		return configurationGoneDescription
	default:
		return invalidResponseDescription
	}
}

func optionalParam(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]any{
		"success":           false,
		"error":             errorCode,
		"error_description": description,
	})
}
