package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/user/repository"
	pkgerrors "codearena/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTokenTTL = 24 * time.Hour
	defaultIssuer         = "codearena"
)

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	DB             db.Database
	Users          repository.UserRepository
	Blocklist      *repository.TokenBlocklistRepository
	JWTSecret      []byte
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// AuthService handles registration, login and token lifecycle.
type AuthService struct {
	db        db.Database
	users     repository.UserRepository
	blocklist *repository.TokenBlocklistRepository
	secret    []byte
	issuer    string
	tokenTTL  time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg AuthServiceConfig) (*AuthService, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if cfg.Blocklist == nil {
		return nil, fmt.Errorf("token blocklist is required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = defaultIssuer
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	return &AuthService{
		db:        cfg.DB,
		users:     cfg.Users,
		blocklist: cfg.Blocklist,
		secret:    cfg.JWTSecret,
		issuer:    cfg.JWTIssuer,
		tokenTTL:  cfg.AccessTokenTTL,
	}, nil
}

// RegisterInput represents input for user registration.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput represents input for user login.
type LoginInput struct {
	Email    string
	Password string
}

// UserInfo represents basic user info for auth responses.
type UserInfo struct {
	ID       int64
	Username string
	Email    string
	Role     repository.UserRole
}

// AuthResult represents the result of register/login.
type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        UserInfo
}

type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Register creates a new user and issues an access token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	if err := validateUsername(input.Username); err != nil {
		return AuthResult{}, err
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateEmail(input.Email); err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}

	user := &repository.User{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: string(passwordHash),
		Role:         repository.UserRoleUser,
	}
	if _, err := s.users.Create(ctx, nil, user); err != nil {
		return AuthResult{}, mapUserCreateError(err)
	}
	return s.issueToken(user)
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := validateEmail(input.Email); err != nil {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	if input.Password == "" {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}

	user, err := s.users.GetByEmail(ctx, nil, input.Email)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	return s.issueToken(user)
}

// Logout revokes the presented access token for its remaining lifetime.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.parseToken(rawToken)
	if err != nil {
		return err
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.blocklist.Block(ctx, claims.ID, ttl); err != nil {
		return pkgerrors.Wrap(fmt.Errorf("block token failed: %w", err), pkgerrors.CacheError)
	}
	return nil
}

// Authenticate validates an access token against signature, expiry and
// the revocation blocklist.
func (s *AuthService) Authenticate(ctx context.Context, rawToken string) (UserInfo, error) {
	claims, err := s.parseToken(rawToken)
	if err != nil {
		return UserInfo{}, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}

	blocked, err := s.blocklist.IsBlocked(ctx, claims.ID)
	if err != nil {
		return UserInfo{}, pkgerrors.Wrap(fmt.Errorf("check blocklist failed: %w", err), pkgerrors.CacheError)
	}
	if blocked {
		return UserInfo{}, pkgerrors.New(pkgerrors.TokenRevoked)
	}
	return UserInfo{ID: userID, Role: repository.UserRole(claims.Role)}, nil
}

// GetProfile returns a user's profile.
func (s *AuthService) GetProfile(ctx context.Context, userID int64) (UserInfo, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return UserInfo{}, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return UserInfo{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	return UserInfo{ID: user.ID, Username: user.Username, Email: user.Email, Role: user.Role}, nil
}

// DeleteAccount removes the user row and revokes the presented token.
func (s *AuthService) DeleteAccount(ctx context.Context, userID int64, rawToken string) error {
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		if err := s.users.Delete(ctx, tx, userID); err != nil {
			if stderrors.Is(err, repository.ErrUserNotFound) {
				return pkgerrors.New(pkgerrors.UserNotFound)
			}
			return pkgerrors.Wrap(fmt.Errorf("delete user failed: %w", err), pkgerrors.DatabaseError)
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*pkgerrors.Error); ok {
			return err
		}
		return pkgerrors.Wrap(fmt.Errorf("transaction failed: %w", err), pkgerrors.TransactionFailed)
	}
	if rawToken != "" {
		if logoutErr := s.Logout(ctx, rawToken); logoutErr != nil {
			return logoutErr
		}
	}
	return nil
}

func (s *AuthService) issueToken(user *repository.User) (AuthResult, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	tokenID, err := newTokenID()
	if err != nil {
		return AuthResult{}, err
	}

	claims := tokenClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID,
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("sign token failed: %w", err), pkgerrors.TokenGenerationFailed)
	}

	return AuthResult{
		AccessToken: raw,
		ExpiresAt:   expiresAt,
		User: UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
			Role:     user.Role,
		},
	}, nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Issuer != s.issuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

func newTokenID() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", pkgerrors.Wrap(fmt.Errorf("generate token id failed: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return hex.EncodeToString(randomBytes), nil
}

func mapUserCreateError(err error) error {
	if stderrors.Is(err, repository.ErrUsernameExists) {
		return pkgerrors.New(pkgerrors.UsernameAlreadyExists)
	}
	if stderrors.Is(err, repository.ErrEmailExists) {
		return pkgerrors.New(pkgerrors.EmailAlreadyExists)
	}
	if stderrors.Is(err, repository.ErrDuplicate) {
		return pkgerrors.New(pkgerrors.RecordAlreadyExists)
	}
	return pkgerrors.Wrap(fmt.Errorf("create user failed: %w", err), pkgerrors.DatabaseError)
}
