package users

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-azure-oauth2-client/oauth2"
)

// User is a remote Azure AD user with the tokens and profile last received for them.
// ObjectID is the identity key; it is unique across registrations.
type User struct {
	ID                int64          `json:"id"`
	ClientID          int64          `json:"clientId"` // Registration the user first signed in through
	ObjectID          string         `json:"objectId"`
	UserPrincipalName *string        `json:"userPrincipalName,omitempty"`
	DisplayName       *string        `json:"displayName,omitempty"`
	GivenName         *string        `json:"givenName,omitempty"`
	Surname           *string        `json:"surname,omitempty"`
	Mail              *string        `json:"mail,omitempty"`
	MobilePhone       *string        `json:"mobilePhone,omitempty"`
	OfficeLocation    *string        `json:"officeLocation,omitempty"`
	PreferredLanguage *string        `json:"preferredLanguage,omitempty"`
	JobTitle          *string        `json:"jobTitle,omitempty"`
	AccessToken       string         `json:"-"`
	RefreshToken      *string        `json:"-"`
	IDToken           *string        `json:"-"`
	ExpiresIn         int            `json:"expiresIn"`        // Seconds, as returned by the token endpoint
	TokenExpiresTime  time.Time      `json:"tokenExpiresTime"` // Derived from ExpiresIn, see SetExpiresIn
	Scope             *string        `json:"scope,omitempty"`
	RawData           oauth2.Payload `json:"rawData,omitempty"` // Last merged provider response
	CreateTime        time.Time      `json:"createTime"`
	UpdateTime        time.Time      `json:"updateTime"`
}

// profileFields maps Graph keys to the user fields they overwrite.
func (u *User) profileFields() map[string]**string {
	return map[string]**string{
		"userPrincipalName": &u.UserPrincipalName,
		"displayName":       &u.DisplayName,
		"givenName":         &u.GivenName,
		"surname":           &u.Surname,
		"mail":              &u.Mail,
		"mobilePhone":       &u.MobilePhone,
		"officeLocation":    &u.OfficeLocation,
		"preferredLanguage": &u.PreferredLanguage,
		"jobTitle":          &u.JobTitle,
	}
}

// SetExpiresIn is the only writer of ExpiresIn and TokenExpiresTime.
func (u *User) SetExpiresIn(seconds int, now time.Time) {
	u.ExpiresIn = seconds
	u.TokenExpiresTime = now.Add(time.Duration(seconds) * time.Second)
}

func (u *User) IsTokenExpired(now time.Time) bool {
	return u.TokenExpiresTime.Before(now)
}

func (u *User) HasRefreshToken() bool {
	return u.RefreshToken != nil && *u.RefreshToken != ""
}

// ApplyProfile copies profile fields present in p. A key that is missing or holds
// anything other than a string or null leaves the field unchanged.
func (u *User) ApplyProfile(p oauth2.Payload) {
	for key, field := range u.profileFields() {
		if v, ok := p.NullableString(key); ok {
			*field = v
		}
	}
}

// ApplyTokens copies token endpoint fields present in p. The access token is only
// replaced by a non-empty string.
func (u *User) ApplyTokens(p oauth2.Payload, now time.Time) {
	if at, ok := p.String(oauth2.KeyAccessToken); ok {
		u.AccessToken = at
	}
	if v, ok := p.NullableString(oauth2.KeyRefreshToken); ok {
		u.RefreshToken = v
	}
	if v, ok := p.NullableString(oauth2.KeyIDToken); ok {
		u.IDToken = v
	}
	if v, ok := p.NullableString(oauth2.KeyScope); ok {
		u.Scope = v
	}
	if n, ok := p.Int(oauth2.KeyExpiresIn); ok {
		u.SetExpiresIn(n, now)
	}
}

// PublicProfile is the subset of the user that may be shown to the browser.
func (u *User) PublicProfile() map[string]*string {
	id := u.ObjectID
	return map[string]*string{
		"object_id":           &id,
		"user_principal_name": u.UserPrincipalName,
		"display_name":        u.DisplayName,
		"mail":                u.Mail,
	}
}

func (u *User) Copy() *User {
	if u == nil {
		return nil
	}
	cp := *u
	src := u.profileFields()
	for key, field := range cp.profileFields() {
		*field = copyString(*src[key])
	}
	cp.RefreshToken = copyString(u.RefreshToken)
	cp.IDToken = copyString(u.IDToken)
	cp.Scope = copyString(u.Scope)
	cp.RawData = u.RawData.Clone()
	return &cp
}

// MarshalJSON leaves out every token, including the copies held in RawData.
func (u User) MarshalJSON() ([]byte, error) {
	type plainUser User
	view := plainUser(u)
	view.RawData = u.RawData.Redacted()
	return json.Marshal(view)
}

func (u *User) String() string {
	return fmt.Sprintf("AzureOAuth2User[%d]:%s", u.ID, u.ObjectID)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
