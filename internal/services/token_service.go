package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims is the JWT payload shared by the REST layer and the socket
// handshake. The subject is the user id.
type Claims struct {
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 tokens. The same signing
// secret covers REST requests and websocket connection handshakes.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (t *TokenService) GenerateAccess(userID int, username string) (string, error) {
	return t.generate(userID, username, tokenTypeAccess, t.accessTTL)
}

func (t *TokenService) GenerateRefresh(userID int, username string) (string, error) {
	return t.generate(userID, username, tokenTypeRefresh, t.refreshTTL)
}

func (t *TokenService) generate(userID int, username, tokenType string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// ValidateAccess parses and verifies an access token. Expired,
// malformed or refresh-typed tokens are rejected.
func (t *TokenService) ValidateAccess(tokenString string) (*Claims, error) {
	return t.validate(tokenString, tokenTypeAccess)
}

func (t *TokenService) ValidateRefresh(tokenString string) (*Claims, error) {
	return t.validate(tokenString, tokenTypeRefresh)
}

func (t *TokenService) validate(tokenString, wantType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != wantType {
		return nil, errors.New("wrong token type")
	}
	return claims, nil
}
