package states

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DefaultTTL is how long an authorization request may wait for its callback.
const DefaultTTL = 10 * time.Minute

const tokenBytes = 16

// State correlates an authorization request with its callback. A state is consumed
// exactly once; used and expired states are terminal and only wait for cleanup.
type State struct {
	ID                  int64     // Store-assigned identifier
	ClientID            int64     // Owning app registration (clients.Client.ID)
	State               string    // Random token sent as the state parameter
	SessionID           *string   // Browser session that started the flow
	CodeChallenge       *string   // PKCE challenge sent to the authorize endpoint
	CodeChallengeMethod *string   // PKCE method (S256 or plain)
	RedirectURI         *string   // Redirect URI the authorization URL was built with
	IsUsed              bool      // Set once by the callback that consumes the state
	ExpiresTime         time.Time // After this the state can no longer be consumed
	CreateTime          time.Time
	UpdateTime          time.Time
}

// New builds an unused state for a registration expiring ttl after now.
func New(clientID int64, token string, now time.Time, ttl time.Duration) *State {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &State{
		ClientID:    clientID,
		State:       token,
		ExpiresTime: now.Add(ttl),
		CreateTime:  now,
		UpdateTime:  now,
	}
}

// GenerateToken returns 128 random bits, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[states.GenerateToken] rand.Read")
	}
	return hex.EncodeToString(b), nil
}

// IsValid reports whether the state can still be consumed.
func (s *State) IsValid(now time.Time) bool {
	return !s.IsUsed && s.ExpiresTime.After(now)
}

func (s *State) IsExpired(now time.Time) bool {
	return !s.ExpiresTime.After(now)
}

// UsesPKCE reports whether a code challenge was sent with the authorization request.
func (s *State) UsesPKCE() bool {
	return s.CodeChallenge != nil && *s.CodeChallenge != ""
}

func (s *State) Copy() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.SessionID = copyString(s.SessionID)
	cp.CodeChallenge = copyString(s.CodeChallenge)
	cp.CodeChallengeMethod = copyString(s.CodeChallengeMethod)
	cp.RedirectURI = copyString(s.RedirectURI)
	return &cp
}

func (s *State) String() string {
	return fmt.Sprintf("AzureOAuth2State[%d]:%s", s.ID, s.State)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
