package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/server/audit"
	"github.com/dmitrijs2005/scenekeeper/internal/server/auth"
	"github.com/dmitrijs2005/scenekeeper/internal/server/config"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/repomanager"
)

// UserService handles registration, login, and issuing JWT access tokens.
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	audit                       audit.Sink
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, sink audit.Sink, cfg *config.Config) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		audit:                       sink,
		jwtSecret:                   []byte(cfg.SecretKey),
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
	}
}

// Register creates a new user with a bcrypt-hashed password and returns a
// signed access token.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", fmt.Errorf("%w: invalid email", common.ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, "", fmt.Errorf("%w: password must be at least 8 characters", common.ErrInvalidInput)
	}

	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, "", fmt.Errorf("%w: email already registered", common.ErrInvalidInput)
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, "", fmt.Errorf("error generating token: %w", err)
	}

	s.audit.Log(ctx, models.AuditAuthRegister, user.ID, nil, nil, map[string]any{"email": email})
	return user, token, nil
}

// Login verifies credentials and returns a signed access token. Unknown
// emails and wrong passwords both yield ErrUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if errors.Is(err, common.ErrNotFound) {
		return nil, "", common.ErrUnauthorized
	}
	if err != nil {
		return nil, "", err
	}

	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return nil, "", common.ErrUnauthorized
	}

	token, err := auth.GenerateToken(user.ID, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, "", fmt.Errorf("error generating token: %w", err)
	}

	s.audit.Log(ctx, models.AuditAuthLogin, user.ID, nil, nil, nil)
	return user, token, nil
}

// VerifyToken resolves the user id carried by an access token.
func (s *UserService) VerifyToken(tokenString string) (string, error) {
	return auth.GetUserIDFromToken(tokenString, s.jwtSecret)
}
