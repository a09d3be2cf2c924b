package domain

import "time"

// OperatorSubject is the only subject operator tokens are minted for.
const OperatorSubject = "operator"

// OperatorClaims are the verified claims of an operator API token.
type OperatorClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
