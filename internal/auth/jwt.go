// Package auth implements the authentication core: JWT issuance and
// validation, Argon2 password hashing with a policy object, and TOTP
// second-factor verification with recovery codes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rustpress/rustpress-core/internal/ids"
)

// TokenType distinguishes access from refresh tokens so a validator can
// reject a token presented for the wrong purpose.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Kind classifies a JWT validation failure so callers can decide between
// silently refreshing and forcing re-authentication.
type Kind int

const (
	KindTokenExpired Kind = iota
	KindInvalidToken
)

// Error carries a Kind alongside the underlying jwt/v5 parse error.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("auth: %s", e.Reason)
	}
	return fmt.Sprintf("auth: %v", e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Claims is the claim bag embedded in every token: standard registered
// claims plus the free-form fields spec §4.9 names (role, tenant) and a
// type tag distinguishing access from refresh.
type Claims struct {
	jwt.RegisteredClaims
	Type     TokenType `json:"typ"`
	Role     string    `json:"role,omitempty"`
	TenantID string    `json:"tenant,omitempty"`
}

// JWTManager issues and validates token pairs sharing a subject.
type JWTManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTManager constructs a manager with the given shared secret, issuer
// string, and access/refresh TTLs. Per spec §4.9 the two horizons must be
// disjoint (access short, refresh long); NewJWTManager does not enforce
// this beyond what the caller configures.
func NewJWTManager(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{secret: secret, issuer: issuer, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// TokenPair is the result of GenerateTokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration // access token's remaining lifetime at issuance
}

// GenerateTokens mints a fresh access/refresh pair for userID. role and
// tenantID are optional (empty string omits the claim).
func (m *JWTManager) GenerateTokens(userID ids.ID, role, tenantID string) (*TokenPair, error) {
	now := time.Now()

	access, err := m.sign(userID, role, tenantID, TokenAccess, now, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth: generate access token: %w", err)
	}
	refresh, err := m.sign(userID, role, tenantID, TokenRefresh, now, m.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("auth: generate refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: m.accessTTL}, nil
}

func (m *JWTManager) sign(userID ids.ID, role, tenantID string, typ TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ids.New().String(),
		},
		Type:     typ,
		Role:     role,
		TenantID: tenantID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateAccess decodes and verifies tokenString as an access token.
func (m *JWTManager) ValidateAccess(tokenString string) (*Claims, error) {
	return m.validate(tokenString, TokenAccess)
}

// ValidateRefresh decodes and verifies tokenString as a refresh token.
func (m *JWTManager) ValidateRefresh(tokenString string) (*Claims, error) {
	return m.validate(tokenString, TokenRefresh)
}

func (m *JWTManager) validate(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &Error{Kind: KindTokenExpired, Reason: "token expired", Cause: err}
		}
		return nil, &Error{Kind: KindInvalidToken, Reason: "parse/verify failed", Cause: err}
	}
	if !token.Valid {
		return nil, &Error{Kind: KindInvalidToken, Reason: "token invalid"}
	}
	if claims.Type != want {
		return nil, &Error{Kind: KindInvalidToken, Reason: fmt.Sprintf("expected %s token, got %s", want, claims.Type)}
	}
	return claims, nil
}

// RefreshTokens validates refreshToken and issues a new pair. The old
// refresh token is not invalidated; rotation/blacklisting is the caller's
// policy per spec §4.9.
func (m *JWTManager) RefreshTokens(refreshToken, role, tenantID string) (*TokenPair, error) {
	claims, err := m.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}
	userID, err := ids.Parse(claims.Subject)
	if err != nil {
		return nil, &Error{Kind: KindInvalidToken, Reason: "malformed subject", Cause: err}
	}
	if role == "" {
		role = claims.Role
	}
	if tenantID == "" {
		tenantID = claims.TenantID
	}
	return m.GenerateTokens(userID, role, tenantID)
}
