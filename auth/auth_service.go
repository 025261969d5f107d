// Package auth drives the Azure AD authorization code flow: it builds authorization
// URLs, consumes callbacks, refreshes tokens and keeps the synced user profiles current.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	xoauth2 "golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/jrsteele09/go-azure-oauth2-client/clients"
	apperrors "github.com/jrsteele09/go-azure-oauth2-client/internal/errors"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/metrics"
	"github.com/jrsteele09/go-azure-oauth2-client/internal/utils"
	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
	"github.com/jrsteele09/go-azure-oauth2-client/oauthmodel"
	"github.com/jrsteele09/go-azure-oauth2-client/states"
	"github.com/jrsteele09/go-azure-oauth2-client/token"
	"github.com/jrsteele09/go-azure-oauth2-client/token/idtoken"
	"github.com/jrsteele09/go-azure-oauth2-client/users"
)

const (
	DefaultScope           = "openid profile email User.Read"
	DefaultCallbackURL     = "http://localhost:8080/azure/oauth2/callback"
	DefaultRefreshInterval = 100 * time.Millisecond
)

// TokenClient performs the calls to Azure AD and Graph.
type TokenClient interface {
	ExchangeCode(ctx context.Context, client *clients.Client, code, redirectURI, codeVerifier string) (oauth2.Payload, error)
	Refresh(ctx context.Context, client *clients.Client, refreshToken string) (oauth2.Payload, error)
	FetchUserInfo(ctx context.Context, accessToken string) (oauth2.Payload, error)
}

// IDTokenVerifier checks the id_token returned with an authorization code exchange.
type IDTokenVerifier interface {
	Verify(ctx context.Context, client *clients.Client, rawIDToken string) (*idtoken.Claims, error)
}

// Repos holds all repository dependencies for the AuthorizationService
type Repos struct {
	Clients clients.Repo // App registrations
	States  states.Repo  // Pending authorization requests
	Users   users.Repo   // Synced Azure AD users
}

// AuthorizationService runs the client side of the OAuth2 flow against Azure AD.
type AuthorizationService struct {
	repos           Repos
	tokens          TokenClient
	idTokens        IDTokenVerifier // Optional; id tokens are stored unverified without it
	nowTime         func() time.Time
	logger          zerolog.Logger
	loginBaseURL    string
	callbackURL     string
	defaultScope    string
	stateTTL        time.Duration
	refreshInterval time.Duration
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.logger = logger
	}
}

// WithCallbackURL sets the redirect URI used for registrations that do not declare one.
func WithCallbackURL(callbackURL string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.callbackURL = callbackURL
	}
}

func WithLoginBaseURL(loginBaseURL string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.loginBaseURL = strings.TrimRight(loginBaseURL, "/")
	}
}

func WithDefaultScope(scope string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.defaultScope = scope
	}
}

func WithStateTTL(ttl time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.stateTTL = ttl
	}
}

// WithRefreshInterval sets the pause between refreshes in RefreshExpiredTokens. Zero disables it.
func WithRefreshInterval(interval time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.refreshInterval = interval
	}
}

// WithIDTokenVerifier enables signature and claim checks on id tokens received in callbacks.
func WithIDTokenVerifier(verifier IDTokenVerifier) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.idTokens = verifier
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(repos Repos, tokens TokenClient, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if repos.States == nil {
		return nil, errors.New("[NewAuthorizationService] States repo is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewAuthorizationService] token client is required")
	}

	as := &AuthorizationService{
		repos:           repos,
		tokens:          tokens,
		nowTime:         time.Now,
		logger:          log.Logger,
		loginBaseURL:    token.DefaultLoginBaseURL,
		callbackURL:     DefaultCallbackURL,
		defaultScope:    DefaultScope,
		stateTTL:        states.DefaultTTL,
		refreshInterval: DefaultRefreshInterval,
	}

	for _, opt := range options {
		opt(as)
	}

	return as, nil
}

// GenerateAuthorizationURL persists a new state and returns the Azure AD authorize URL
// carrying it. The registration is the tenant's when req.TenantID is set, otherwise the
// lowest-id valid one.
func (as *AuthorizationService) GenerateAuthorizationURL(ctx context.Context, req oauthmodel.AuthorizationRequest) (string, error) {
	if err := req.Validate(); err != nil {
		metrics.AuthorizationURLsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", errors.Wrap(err, "[GenerateAuthorizationURL] invalid request")
	}

	client, err := as.resolveClient(ctx, utils.Value(req.TenantID))
	if err != nil {
		metrics.AuthorizationURLsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", err
	}

	stateToken, err := states.GenerateToken()
	if err != nil {
		return "", errors.Wrap(err, "[GenerateAuthorizationURL] GenerateToken")
	}

	redirectURI := client.EffectiveRedirectURI(as.callbackURL)
	state := states.New(client.ID, stateToken, as.nowTime(), as.stateTTL)
	state.SessionID = req.SessionID
	state.CodeChallenge = req.CodeChallenge
	state.CodeChallengeMethod = req.CodeChallengeMethod
	state.RedirectURI = utils.Ptr(redirectURI)

	if err := as.repos.States.Create(ctx, state); err != nil {
		metrics.AuthorizationURLsTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", errors.Wrap(err, "[GenerateAuthorizationURL] States.Create")
	}

	config := xoauth2.Config{
		ClientID:    client.ClientID,
		Endpoint:    token.Endpoint(as.loginBaseURL, client.TenantID),
		RedirectURL: redirectURI,
		Scopes:      strings.Fields(client.EffectiveScope(as.defaultScope)),
	}
	params := []xoauth2.AuthCodeOption{
		xoauth2.SetAuthURLParam("response_mode", string(oauth2.QueryResponseMode)),
	}
	if state.UsesPKCE() {
		params = append(params, xoauth2.SetAuthURLParam("code_challenge", *state.CodeChallenge))
		if state.CodeChallengeMethod != nil {
			params = append(params, xoauth2.SetAuthURLParam("code_challenge_method", *state.CodeChallengeMethod))
		}
	}

	metrics.AuthorizationURLsTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	as.logger.Debug().
		Str("client_id", client.ClientID).
		Str("tenant_id", client.TenantID).
		Bool("pkce", state.UsesPKCE()).
		Msg("authorization url generated")
	return config.AuthCodeURL(stateToken, params...), nil
}

// HandleCallback consumes the state, exchanges the code, fetches the Graph profile and
// stores the merged result. The state is marked used before any provider call, so a
// replayed callback fails with errors.ErrInvalidState even if the first one failed.
func (as *AuthorizationService) HandleCallback(ctx context.Context, code, stateToken string) (*users.User, error) {
	user, err := as.handleCallback(ctx, code, stateToken)
	metrics.CallbacksTotal.WithLabelValues(callbackResult(err)).Inc()
	return user, err
}

func (as *AuthorizationService) handleCallback(ctx context.Context, code, stateToken string) (*users.User, error) {
	now := as.nowTime()

	state, err := as.repos.States.FindValid(ctx, stateToken, now)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, errors.WithStack(InvalidStateErr)
		}
		return nil, errors.Wrap(err, "[HandleCallback] States.FindValid")
	}

	used, err := as.repos.States.MarkUsed(ctx, stateToken, now)
	if err != nil {
		return nil, errors.Wrap(err, "[HandleCallback] States.MarkUsed")
	}
	if !used {
		return nil, errors.WithStack(InvalidStateErr)
	}

	client, err := as.repos.Clients.Get(ctx, state.ClientID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, errors.WithStack(StateConfigGoneErr)
		}
		return nil, errors.Wrap(err, "[HandleCallback] Clients.Get")
	}

	redirectURI := client.EffectiveRedirectURI(as.callbackURL)
	if state.RedirectURI != nil && *state.RedirectURI != redirectURI {
		as.logger.Warn().
			Str("state_redirect_uri", *state.RedirectURI).
			Str("redirect_uri", redirectURI).
			Msg("redirect uri changed since the authorization url was issued")
	}

	// The stored challenge doubles as the verifier. Callers using plain PKCE send the
	// verifier itself as the challenge.
	tokens, err := as.timed("exchange_code", func() (oauth2.Payload, error) {
		return as.tokens.ExchangeCode(ctx, client, code, redirectURI, utils.Value(state.CodeChallenge))
	})
	if err != nil {
		return nil, errors.Wrap(err, "[HandleCallback] ExchangeCode")
	}

	if rawIDToken, ok := tokens.String(oauth2.KeyIDToken); ok && as.idTokens != nil {
		if _, err := as.idTokens.Verify(ctx, client, rawIDToken); err != nil {
			return nil, errors.Wrap(err, "[HandleCallback] id token")
		}
	}

	accessToken, _ := tokens.String(oauth2.KeyAccessToken)
	profile, err := as.timed("user_info", func() (oauth2.Payload, error) {
		return as.tokens.FetchUserInfo(ctx, accessToken)
	})
	if err != nil {
		return nil, errors.Wrap(err, "[HandleCallback] FetchUserInfo")
	}

	user, err := as.saveUser(ctx, tokens.Merge(profile), client.ID, now)
	if err != nil {
		return nil, errors.Wrap(err, "[HandleCallback]")
	}

	as.logger.Info().
		Str("object_id", user.ObjectID).
		Str("client_id", client.ClientID).
		Msg("user signed in")
	return user, nil
}

// RefreshToken exchanges the user's refresh token and stores the new tokens. It reports
// false for unknown users, users without a refresh token and any provider or store
// failure; failures are logged, never returned.
func (as *AuthorizationService) RefreshToken(ctx context.Context, objectID string) bool {
	logger := as.logger.With().Str("object_id", objectID).Logger()

	user, err := as.repos.Users.FindByObjectID(ctx, objectID)
	if err != nil {
		logger.Debug().Err(err).Msg("refresh skipped: user lookup failed")
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return false
	}
	if !user.HasRefreshToken() {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return false
	}

	client, err := as.repos.Clients.Get(ctx, user.ClientID)
	if err != nil {
		logger.Warn().Err(err).Int64("config_id", user.ClientID).Msg("refresh failed: configuration missing")
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return false
	}

	payload, err := as.timed("refresh", func() (oauth2.Payload, error) {
		return as.tokens.Refresh(ctx, client, *user.RefreshToken)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("refresh failed")
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return false
	}

	now := as.nowTime()
	user.ApplyTokens(payload, now)
	user.UpdateTime = now
	if err := as.repos.Users.Save(ctx, user); err != nil {
		logger.Error().Err(err).Msg("refresh failed: save")
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return false
	}

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	logger.Debug().Time("token_expires", user.TokenExpiresTime).Msg("token refreshed")
	return true
}

// RefreshExpiredTokens refreshes every user whose token has expired and who holds a
// refresh token, pausing between provider calls. It returns how many succeeded.
func (as *AuthorizationService) RefreshExpiredTokens(ctx context.Context) int {
	expired, err := as.repos.Users.FindExpiredTokenUsers(ctx, as.nowTime())
	if err != nil {
		as.logger.Error().Err(err).Msg("listing users with expired tokens")
		return 0
	}

	limit := rate.Inf
	if as.refreshInterval > 0 {
		limit = rate.Every(as.refreshInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	refreshed := 0
	for _, user := range expired {
		if err := limiter.Wait(ctx); err != nil {
			as.logger.Warn().Err(err).Int("remaining", len(expired)-refreshed).Msg("refresh run interrupted")
			break
		}
		if as.RefreshToken(ctx, user.ObjectID) {
			refreshed++
		}
	}

	as.logger.Info().Int("expired", len(expired)).Int("refreshed", refreshed).Msg("expired tokens refreshed")
	return refreshed
}

// FetchUserInfo returns the user's profile. The stored payload, without its tokens, is
// served while the token is valid unless forceRefresh is set; otherwise an expired token is refreshed
// when possible and the profile is read live from Graph and stored.
func (as *AuthorizationService) FetchUserInfo(ctx context.Context, objectID string, forceRefresh bool) (oauth2.Payload, error) {
	user, err := as.findUser(ctx, objectID)
	if err != nil {
		return nil, err
	}

	now := as.nowTime()
	if !forceRefresh && !user.IsTokenExpired(now) && len(user.RawData) > 0 {
		metrics.UserInfoFetchesTotal.WithLabelValues("cache").Inc()
		return user.RawData.Redacted(), nil
	}

	if user.IsTokenExpired(now) && user.HasRefreshToken() {
		if as.RefreshToken(ctx, objectID) {
			if user, err = as.findUser(ctx, objectID); err != nil {
				return nil, err
			}
		}
	}

	profile, err := as.timed("user_info", func() (oauth2.Payload, error) {
		return as.tokens.FetchUserInfo(ctx, user.AccessToken)
	})
	if err != nil {
		return nil, errors.Wrap(err, "[FetchUserInfo] FetchUserInfo")
	}
	metrics.UserInfoFetchesTotal.WithLabelValues("graph").Inc()

	if _, err := as.saveUser(ctx, profile, user.ClientID, as.nowTime()); err != nil {
		return nil, errors.Wrap(err, "[FetchUserInfo]")
	}
	return profile, nil
}

// CleanupExpiredStates deletes used and expired states.
func (as *AuthorizationService) CleanupExpiredStates(ctx context.Context) (int, error) {
	removed, err := as.repos.States.CleanupExpired(ctx, as.nowTime())
	if err != nil {
		return 0, errors.Wrap(err, "[CleanupExpiredStates] States.CleanupExpired")
	}
	metrics.StatesCleanedTotal.Add(float64(removed))
	as.logger.Info().Int("removed", removed).Msg("expired states cleaned up")
	return removed, nil
}

func (as *AuthorizationService) resolveClient(ctx context.Context, tenantID string) (*clients.Client, error) {
	var (
		client *clients.Client
		err    error
	)
	if tenantID != "" {
		client, err = as.repos.Clients.FindByTenantID(ctx, tenantID)
	} else {
		client, err = as.repos.Clients.FindValid(ctx)
	}
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, errors.WithStack(NoValidConfigErr)
		}
		return nil, errors.Wrap(err, "[resolveClient] lookup")
	}
	return client, nil
}

func (as *AuthorizationService) findUser(ctx context.Context, objectID string) (*users.User, error) {
	user, err := as.repos.Users.FindByObjectID(ctx, objectID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, errors.WithStack(UserNotFoundErr)
		}
		return nil, errors.Wrap(err, "[findUser] FindByObjectID")
	}
	return user, nil
}

// saveUser merges payload into the stored user and saves it. Two first sign-ins of the
// same user race to insert; the loser gets ErrDuplicate and merges again into the row
// the winner created.
func (as *AuthorizationService) saveUser(ctx context.Context, payload oauth2.Payload, clientID int64, now time.Time) (*users.User, error) {
	for attempt := 1; ; attempt++ {
		user, err := users.Upsert(ctx, as.repos.Users, payload, clientID, now)
		if err != nil {
			return nil, errors.Wrap(err, "Upsert")
		}
		err = as.repos.Users.Save(ctx, user)
		switch {
		case err == nil:
			return user, nil
		case attempt == 1 && apperrors.Is(err, apperrors.ErrDuplicate):
			as.logger.Debug().Str("object_id", user.ObjectID).Msg("user created concurrently, merging again")
		default:
			return nil, errors.Wrap(err, "Users.Save")
		}
	}
}

func (as *AuthorizationService) timed(operation string, call func() (oauth2.Payload, error)) (oauth2.Payload, error) {
	start := time.Now()
	payload, err := call()
	metrics.ProviderRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return payload, err
}

func callbackResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case apperrors.Is(err, apperrors.ErrInvalidState):
		return metrics.ResultInvalidState
	case apperrors.Is(err, apperrors.ErrAPI):
		return metrics.ResultAPIError
	default:
		return metrics.ResultError
	}
}
