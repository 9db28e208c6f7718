package token

import (
	"errors"
	"fmt"
	"time"

	domain "accounts/backend/internal/domain/account"
	usecase "accounts/backend/internal/usecase/account"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired indicates a well-formed, correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a malformed token, a bad signature or an unexpected algorithm.
	ErrTokenInvalid = errors.New("token invalid")
)

// JWTManager issues and validates HS256 session tokens.
type JWTManager struct {
	secret  []byte
	issuer  string
	nowFunc func() time.Time
}

// NewJWTManager constructs a manager with the provided secret and issuer.
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secret:  []byte(secret),
		issuer:  issuer,
		nowFunc: time.Now,
	}
}

// Ensure JWTManager implements the SessionTokens interface.
var _ usecase.SessionTokens = (*JWTManager)(nil)

// Claims represents token claims.
type Claims struct {
	UserID     string `json:"uid"`
	Email      string `json:"email"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	jwt.RegisteredClaims
}

// Issue creates a signed JWT for the subject valid for ttl.
func (m *JWTManager) Issue(subject domain.SessionClaims, ttl time.Duration) (string, time.Time, error) {
	if subject.UserID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	now := m.nowFunc().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:     subject.UserID,
		Email:      subject.Email,
		GivenName:  subject.FirstName,
		FamilyName: subject.LastName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, jwt.NewNumericDate(expiresAt).Time, nil
}

// Verify parses and validates the token returning its claims when valid.
func (m *JWTManager) Verify(tokenString string) (domain.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.SessionClaims{}, ErrTokenExpired
		}
		return domain.SessionClaims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.SessionClaims{}, ErrTokenInvalid
	}

	return domain.SessionClaims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
