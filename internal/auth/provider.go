// Package auth provides authentication functionality for the transport
// layer. Token issuance happens elsewhere; this package only validates
// bearer tokens minted there and exposes the caller identity they carry.
package auth

// Verifier validates a bearer token and extracts the caller identity it
// carries. The RPC transport's AuthMiddleware is the sole consumer.
type Verifier interface {
	// ValidateToken validates a JWT token and returns its claims.
	ValidateToken(token string) (*Claims, error)
}

// BaseClaims represents the identity claims carried in a token.
type BaseClaims struct {
	// UserID is the id of the authenticated caller.
	UserID string `json:"userId"`
}

// Claims represents the validated JWT claims.
type Claims struct {
	BaseClaims
	StandardClaims any `json:"standardClaims"`
}
