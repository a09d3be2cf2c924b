package domain

import "golang.org/x/oauth2"

// CodeChallengeMethod is the only PKCE transform this client uses.
const CodeChallengeMethod = "S256"

// PKCEPair is a proof key for one authorization flow.
// The verifier stays server-side; only the challenge leaves the process.
type PKCEPair struct {
	Verifier  string
	Challenge string
}

// NewPKCEPair draws a fresh verifier from the system CSPRNG and derives its
// S256 challenge. The verifier is 43 unpadded base64url characters (256 bits).
// An unavailable entropy source aborts the process rather than returning a
// weak verifier.
func NewPKCEPair() PKCEPair {
	verifier := oauth2.GenerateVerifier()
	return PKCEPair{
		Verifier:  verifier,
		Challenge: DeriveChallenge(verifier),
	}
}

// DeriveChallenge returns base64url(sha256(verifier)) without padding.
func DeriveChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
