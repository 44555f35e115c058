package local

import (
	"fmt"
	"time"

	"github.com/agencykit/proposta"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Claims is the token payload minted for a session
type Claims struct {
	jwt.RegisteredClaims
	Email    string         `json:"email,omitempty"`
	Metadata map[string]any `json:"meta,omitempty"`
}

// TokenServiceImpl signs and validates HS256 session tokens
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          proposta.Logger
}

// NewTokenService creates a new token service. tokenExpiration is in hours.
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger proposta.Logger) *TokenServiceImpl {
	if logger == nil {
		logger = proposta.DefaultLogger()
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
	}
}

// Generate mints a signed token for the account
func (ts *TokenServiceImpl) Generate(account *Account) (string, time.Time, error) {
	if account == nil {
		return "", time.Time{}, goerrors.New("account must not be nil", goerrors.CategoryInternal)
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(ts.tokenExpiration) * time.Hour)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   account.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email:    account.Email,
		Metadata: account.Metadata,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, expiresAt, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(tokenString string) (*Claims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, goerrors.New("session token has expired", goerrors.CategoryAuth).
				WithTextCode("TOKEN_EXPIRED")
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "malformed session token")
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("token validate could not decode or validate claims")
	return nil, goerrors.New("unable to decode session claims", goerrors.CategoryAuth)
}
