package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"student_records/backend/internal/repository"
	"student_records/backend/internal/shared"
)

const tokenIssuer = "student-records"

// AuthService issues and validates session tokens
type AuthService struct {
	config   *shared.ServiceConfig
	users    repository.UserRepository
	sessions repository.SessionRepository
	log      *logrus.Logger
}

// CustomClaims for JWT
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// LoginResult is returned on successful login
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *shared.User `json:"user"`
}

// NewAuthService creates a new AuthService instance
func NewAuthService(config *shared.ServiceConfig, users repository.UserRepository, sessions repository.SessionRepository, log *logrus.Logger) *AuthService {
	return &AuthService{
		config:   config,
		users:    users,
		sessions: sessions,
		log:      log,
	}
}

// Login authenticates any active account and returns a user-scoped token
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return s.login(ctx, email, password, shared.ScopeUser)
}

// AdminLogin authenticates admin accounts only and returns an admin-scoped token
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (*LoginResult, error) {
	return s.login(ctx, email, password, shared.ScopeAdmin)
}

func (s *AuthService) login(ctx context.Context, email, password, scope string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "email and password are required")
	}

	// 1. Find User
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		s.log.WithError(err).Error("Failed to look up user")
		return nil, status.Error(codes.Internal, "database error")
	}

	// 2. Check Password (BCrypt)
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}

	if !user.IsActive {
		return nil, status.Error(codes.PermissionDenied, "account is inactive")
	}
	if scope == shared.ScopeAdmin && user.Role != shared.RoleAdmin {
		return nil, status.Error(codes.PermissionDenied, "admin access required")
	}

	// 3. Generate JWT
	tokenString, expiresAt, err := s.generateToken(user.ID, user.Role, scope)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to generate token")
	}

	// 4. Create Session (server-side logout/revocation)
	session := &shared.Session{
		ID:        shared.GenerateID("sess"),
		UserID:    user.ID,
		Token:     tokenString,
		Scope:     scope,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		s.log.WithError(err).Error("Failed to create session")
		return nil, status.Error(codes.Internal, "failed to create session")
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "scope": scope}).Info("User logged in")

	return &LoginResult{Token: tokenString, ExpiresAt: expiresAt, User: user}, nil
}

// Logout invalidates the session holding token. Logging out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, status.Error(codes.InvalidArgument, "token is required")
	}

	deleted, err := s.sessions.DeleteByToken(ctx, token)
	if err != nil {
		s.log.WithError(err).Error("Failed to delete session")
		return false, status.Error(codes.Internal, "failed to logout")
	}
	return deleted > 0, nil
}

// ValidateToken checks signature, expiry, session liveness and account state
func (s *AuthService) ValidateToken(ctx context.Context, token string) (shared.Principal, *shared.User, error) {
	if token == "" {
		return shared.Principal{}, nil, status.Error(codes.Unauthenticated, "token missing")
	}

	// 1. Parse and Verify Signature locally
	claims, err := s.parseToken(token)
	if err != nil {
		return shared.Principal{}, nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}

	// 2. Revocation Check
	live, err := s.sessions.Exists(ctx, token)
	if err != nil {
		s.log.WithError(err).Error("Failed to check session")
		return shared.Principal{}, nil, status.Error(codes.Unavailable, "session store unavailable")
	}
	if !live {
		return shared.Principal{}, nil, status.Error(codes.Unauthenticated, "session expired or revoked")
	}

	// 3. Fetch User Details
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return shared.Principal{}, nil, status.Error(codes.Unauthenticated, "user not found")
	}
	if !user.IsActive {
		return shared.Principal{}, nil, status.Error(codes.Unauthenticated, "account inactive")
	}

	return shared.Principal{UserID: user.ID, Role: user.Role, Scope: claims.Scope}, user, nil
}

// ChangePassword updates the password and ends every session of the user
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if userID == "" || oldPassword == "" || newPassword == "" {
		return status.Error(codes.InvalidArgument, "all fields required")
	}

	// 1. Fetch User
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return status.Error(codes.NotFound, "user not found")
	}

	// 2. Verify Old Password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return status.Error(codes.InvalidArgument, "incorrect old password")
	}

	// 3. Hash New Password
	newHash, err := HashPassword(newPassword, s.config.Security.BCryptCost)
	if err != nil {
		return status.Error(codes.Internal, "failed to process password")
	}

	// 4. Update DB
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return status.Error(codes.Internal, "failed to update password")
	}

	// 5. Force logout
	if _, err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("Failed to revoke sessions after password change")
	}
	return nil
}

// HashPassword hashes a password with bcrypt at cost, falling back to the default cost
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ============================================================================
// Internal Helpers
// ============================================================================

// generateToken creates a signed JWT
func (s *AuthService) generateToken(userID, role, scope string) (string, time.Time, error) {
	hours := s.config.Security.JWTExpirationHours
	if hours <= 0 {
		hours = 24
	}
	expirationTime := time.Now().Add(time.Duration(hours) * time.Hour)

	claims := CustomClaims{
		UserID: userID,
		Role:   role,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			// jti keeps tokens unique when issued within the same second
			ID:        shared.GenerateID("jti"),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Security.JWTSecret))

	return tokenString, expirationTime, err
}

// parseToken validates the JWT signature and extracts claims
func (s *AuthService) parseToken(tokenString string) (*CustomClaims, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Security.JWTSecret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}
