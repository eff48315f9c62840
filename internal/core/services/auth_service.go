package services

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"aimon/internal/core/domain"
	"aimon/pkg/utils"
	"aimon/pkg/validation"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type Claims struct {
	UserID    domain.UserID `json:"user_id"`
	Username  string        `json:"username"`
	TokenType string        `json:"token_type"`
	jwt.RegisteredClaims
}

// AuthService issues and validates JWTs and keeps the user registry.
type AuthService struct {
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration

	mu    sync.RWMutex
	users map[string]*userRecord
}

type userRecord struct {
	user         domain.User
	passwordHash []byte
}

func NewAuthService(jwtSecret string, accessTokenTTL, refreshTokenTTL time.Duration) *AuthService {
	return &AuthService{
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		users:           make(map[string]*userRecord),
	}
}

// Register creates a user account. Username lookup is case-insensitive.
func (s *AuthService) Register(username, email, password string) (*domain.User, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	key := strings.ToLower(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[key]; exists {
		return nil, ErrUserExists
	}

	user := domain.User{
		ID:        domain.UserID(utils.GenerateRequestID()),
		Username:  username,
		Email:     email,
		CreatedAt: utils.Now(),
	}
	s.users[key] = &userRecord{user: user, passwordHash: hash}
	return &user, nil
}

// Login verifies credentials and returns the matching user.
func (s *AuthService) Login(username, password string) (*domain.User, error) {
	s.mu.RLock()
	rec, ok := s.users[strings.ToLower(username)]
	s.mu.RUnlock()

	if !ok {
		// burn comparable time so missing users are not distinguishable
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	user := rec.user
	return &user, nil
}

func (s *AuthService) GenerateToken(userID domain.UserID, username string) (string, error) {
	return s.signedToken(userID, username, tokenTypeAccess, s.accessTokenTTL)
}

func (s *AuthService) GenerateRefreshToken(userID domain.UserID) (string, error) {
	return s.signedToken(userID, "", tokenTypeRefresh, s.refreshTokenTTL)
}

func (s *AuthService) signedToken(userID domain.UserID, username, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeAccess)
}

// ValidateRefreshToken accepts only tokens issued by GenerateRefreshToken.
// An access token presented here is rejected, and vice versa.
func (s *AuthService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeRefresh)
}

func (s *AuthService) validate(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
