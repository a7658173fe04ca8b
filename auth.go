package occasync

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword derives a bcrypt hash suitable for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword reports whether the password matches the stored hash
func ComparePassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Claims is the token payload. Field names are part of the wire format;
// tokens issued before this rewrite still verify.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the verified identity attached to a request
type Principal struct {
	UserID string
	Email  string
	Role   string
}

// TokenSigner issues and verifies signed bearer tokens
type TokenSigner struct {
	secret  []byte
	ttl     time.Duration
	metrics Metrics
	now     func() time.Time
}

// NewTokenSigner creates a signer. It refuses an empty secret so a
// misconfigured process fails at startup, not on the first login.
func NewTokenSigner(secret string, metrics Metrics) (*TokenSigner, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	return &TokenSigner{
		secret:  []byte(secret),
		ttl:     TokenTTL,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Generate issues a token for the user, valid for the signer's TTL
func (s *TokenSigner) Generate(userID, email, role string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	s.metrics.Increment(MetricAuthIssued)
	return signed, nil
}

// Verify parses and validates a token. Any failure, whether a bad
// signature, expiry, or garbage input, yields nil: callers treat the
// request as anonymous rather than distinguishing failure kinds.
func (s *TokenSigner) Verify(tokenString string) *Claims {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		s.metrics.Increment(MetricAuthRejected)
		return nil
	}
	return claims
}
