package occasync

import (
	"net/http"
	"strings"
)

// Authenticator resolves an HTTP request to a verified Principal
type Authenticator struct {
	signer *TokenSigner
}

// NewAuthenticator creates an Authenticator around a token signer
func NewAuthenticator(signer *TokenSigner) *Authenticator {
	return &Authenticator{signer: signer}
}

// BearerToken extracts the token from an Authorization header, or ""
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// Authenticate verifies the request's bearer token. A missing header,
// malformed scheme, or invalid token all come back as ErrUnauthorized.
func (a *Authenticator) Authenticate(r *http.Request) (*Principal, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, ErrUnauthorized
	}

	claims := a.signer.Verify(token)
	if claims == nil {
		return nil, ErrUnauthorized
	}

	return &Principal{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// RequireAdmin authenticates and additionally demands the admin role.
// A valid non-admin identity gets ErrForbidden, not ErrUnauthorized.
func (a *Authenticator) RequireAdmin(r *http.Request) (*Principal, error) {
	principal, err := a.Authenticate(r)
	if err != nil {
		return nil, err
	}
	if principal.Role != "admin" {
		return nil, ErrForbidden
	}
	return principal, nil
}
