package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/pagepay/internal"
)

const DefaultTokenTTL = time.Hour

// UserRepository resolves an admin username to its bcrypt hash.
type UserRepository interface {
	GetPasswordHash(username string) (passwordHash string, ok bool)
}

// ConfigUserRepository serves admin users declared in configuration.
type ConfigUserRepository struct {
	users map[string]string
}

func NewConfigUserRepository(users []internal.AdminUser) *ConfigUserRepository {
	m := make(map[string]string, len(users))
	for _, u := range users {
		m[u.Username] = u.PasswordHash
	}
	return &ConfigUserRepository{users: m}
}

func (r *ConfigUserRepository) GetPasswordHash(username string) (string, bool) {
	hash, ok := r.users[username]
	return hash, ok
}

// Service is the main auth service with dependencies
type Service struct {
	userRepo       UserRepository
	tokenGenerator TokenGenerator
	logger         *slog.Logger
}

// NewService creates a new auth service
func NewService(userRepo UserRepository, tokenGen TokenGenerator, logger *slog.Logger) *Service {
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		logger:         logger,
	}
}

func NewServiceFromConfig(cfg internal.AdminConfig, logger *slog.Logger) *Service {
	return NewService(NewConfigUserRepository(cfg.Users), NewJWTTokenGenerator(cfg.JWTSecret, cfg.TokenTTL), logger)
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(secret string, ttl time.Duration) *JWTTokenGenerator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTTokenGenerator{
		Secret: []byte(secret),
		TTL:    ttl,
		now:    time.Now,
	}
}

// Authenticate validates credentials and returns an access token. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	storedHash, ok := s.userRepo.GetPasswordHash(dto.Username)
	if !ok {
		// keep timing comparable to a real hash check
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(dto.Password))
		s.logger.Warn("admin login for unknown user", "username", dto.Username)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(dto.Password)); err != nil {
		s.logger.Warn("admin login with wrong password", "username", dto.Username)
		return AuthTokens{}, internal.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokenGenerator.GenerateAccessToken(dto.Username)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to issue token", err)
	}

	s.logger.Info("admin logged in", "username", dto.Username)
	return AuthTokens{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString)
}

// passwordCost is shared by stored hashes and dummyHash so unknown users
// cost as much as wrong passwords.
const passwordCost = bcrypt.DefaultCost

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("pagepay-dummy-password"), passwordCost)

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(username string) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.TTL)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(j.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Username != "" {
		return claims, nil
	}

	return nil, internal.ErrInvalidToken
}

// WithClock replaces the time source used for issuing and validating.
func (j *JWTTokenGenerator) WithClock(now func() time.Time) *JWTTokenGenerator {
	j.now = now
	return j
}

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
