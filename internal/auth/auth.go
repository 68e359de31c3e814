// Package auth handles password hashing, JWT issuing and validation, and the
// role checks used by the web API.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/intercept-sim/internal/db"
)

// User roles, highest first.
const (
	RoleAdmin   = "admin"   // user management plus everything below
	RoleAnalyst = "analyst" // run engagements and batches, save scenarios
	RoleViewer  = "viewer"  // read stored results
)

// Issuer is the JWT iss claim.
const Issuer = "intercept-sim"

var (
	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrUnauthorized is returned when user lacks required permissions
	ErrUnauthorized = errors.New("unauthorized access")
)

// Claims are the JWT claims for a session.
type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret     string
	TokenDuration time.Duration // default 24h
	BCryptCost    int           // default bcrypt.DefaultCost
}

// Service provides authentication operations.
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(cfg Config) *Service {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 24 * time.Hour
	}
	return &Service{config: cfg, now: time.Now}
}

// HashPassword hashes a plaintext password using bcrypt.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword compares a plaintext password with a bcrypt hash.
func (s *Service) ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// GenerateToken signs an HS256 token for a user.
func (s *Service) GenerateToken(userID int, username, role string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
}

// ValidateToken validates a token and returns its claims. Any failure,
// including a wrong issuer or signing method, is ErrInvalidToken.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			return []byte(s.config.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// UserStore looks up accounts by username.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*db.User, error)
}

// Login checks a username and password against store and returns the user
// with a fresh token. Unknown users, inactive users and wrong passwords all
// yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, store UserStore, username, password string) (*db.User, string, error) {
	user, err := store.GetByUsername(ctx, username)
	if errors.Is(err, db.ErrUserNotFound) {
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if !user.IsActive || s.ComparePassword(user.PasswordHash, password) != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

var roleLevel = map[string]int{
	RoleAdmin:   2,
	RoleAnalyst: 1,
	RoleViewer:  0,
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	_, ok := roleLevel[role]
	return ok
}

// HasRole checks if userRole is requiredRole or higher.
// Role hierarchy: Admin > Analyst > Viewer
func HasRole(userRole, requiredRole string) bool {
	userLevel, ok1 := roleLevel[userRole]
	requiredLevel, ok2 := roleLevel[requiredRole]
	if !ok1 || !ok2 {
		return false
	}
	return userLevel >= requiredLevel
}

// CanRunEngagements checks if a role may start engagements and batches.
func CanRunEngagements(role string) bool {
	return HasRole(role, RoleAnalyst)
}

// CanViewResults checks if a role may read stored results.
func CanViewResults(role string) bool {
	return HasRole(role, RoleViewer)
}

// CanManageUsers checks if a role can manage users.
func CanManageUsers(role string) bool {
	return role == RoleAdmin
}

type claimsKey struct{}

// NewContext returns a copy of ctx carrying claims.
func NewContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims stored by NewContext, if any.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}
