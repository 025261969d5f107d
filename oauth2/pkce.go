package oauth2

import (
	"crypto/sha256"
	"encoding/base64"
)

// S256Challenge derives the S256 code_challenge for a verifier.
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyCodeChallenge checks a verifier against a stored challenge. An empty method is
// plain. No challenge and no verifier means PKCE was not used and passes.
func VerifyCodeChallenge(storedChallenge, verifier string, method CodeMethodType) bool {
	if storedChallenge == "" && verifier == "" {
		return true
	}
	switch method {
	case CodeMethodTypeS256:
		return S256Challenge(verifier) == storedChallenge
	case CodeMethodTypePlain, "":
		return storedChallenge == verifier
	}
	return false
}
