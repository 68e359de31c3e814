package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/intercept-sim/internal/db"
)

func newTestService() *Service {
	return NewService(Config{JWTSecret: "test-secret", BCryptCost: bcrypt.MinCost})
}

func TestPasswordHashing(t *testing.T) {
	s := newTestService()
	hash, err := s.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "hunter2" {
		t.Error("Expected hash to differ from the password")
	}
	if err := s.ComparePassword(hash, "hunter2"); err != nil {
		t.Errorf("Expected password to match, got %v", err)
	}
	if err := s.ComparePassword(hash, "hunter3"); err == nil {
		t.Error("Expected wrong password to be rejected")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestService()
	token, err := s.GenerateToken(7, "alice", RoleAnalyst)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" {
		t.Errorf("Expected user 7/alice, got %d/%s", claims.UserID, claims.Username)
	}
	if claims.Role != RoleAnalyst {
		t.Errorf("Expected role %s, got %s", RoleAnalyst, claims.Role)
	}
	if claims.Issuer != Issuer {
		t.Errorf("Expected issuer %s, got %s", Issuer, claims.Issuer)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	s := newTestService()

	sign := func(t *testing.T, method jwt.SigningMethod, claims *Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("SignedString failed: %v", err)
		}
		return token
	}
	issue := func(t *testing.T, svc *Service) string {
		t.Helper()
		token, err := svc.GenerateToken(1, "bob", RoleViewer)
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}
		return token
	}

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"Wrong secret", func(t *testing.T) string {
			return issue(t, NewService(Config{JWTSecret: "other"}))
		}},
		{"Expired", func(t *testing.T) string {
			past := newTestService()
			past.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
			return issue(t, past)
		}},
		{"Wrong issuer", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, &Claims{
				UserID: 1,
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    "someone-else",
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				},
			})
		}},
		{"Wrong algorithm", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS512, &Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}})
		}},
		{"Garbage", func(*testing.T) string { return "not.a.token" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.ValidateToken(tt.token(t)); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

type memoryStore map[string]*db.User

func (m memoryStore) GetByUsername(_ context.Context, username string) (*db.User, error) {
	if u, ok := m[username]; ok {
		return u, nil
	}
	return nil, db.ErrUserNotFound
}

func TestLogin(t *testing.T) {
	s := newTestService()
	hash, err := s.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	store := memoryStore{
		"alice": {ID: 1, Username: "alice", PasswordHash: hash, Role: RoleAdmin, IsActive: true},
		"carol": {ID: 2, Username: "carol", PasswordHash: hash, Role: RoleViewer, IsActive: false},
	}
	ctx := context.Background()

	user, token, err := s.Login(ctx, store, "alice", "correct horse")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != 1 {
		t.Errorf("Expected user 1, got %d", user.ID)
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Expected role %s, got %s", RoleAdmin, claims.Role)
	}

	// inactive users cannot log in
	rejected := []struct{ username, password string }{
		{"alice", "wrong"},
		{"nobody", "correct horse"},
		{"carol", "correct horse"},
	}
	for _, r := range rejected {
		if _, _, err := s.Login(ctx, store, r.username, r.password); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Login(%s): expected ErrInvalidCredentials, got %v", r.username, err)
		}
	}
}

func TestRoles(t *testing.T) {
	tests := []struct {
		role              string
		run, view, manage bool
	}{
		{RoleAdmin, true, true, true},
		{RoleAnalyst, true, true, false},
		{RoleViewer, false, true, false},
		{"guest", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := CanRunEngagements(tt.role); got != tt.run {
				t.Errorf("CanRunEngagements = %v, want %v", got, tt.run)
			}
			if got := CanViewResults(tt.role); got != tt.view {
				t.Errorf("CanViewResults = %v, want %v", got, tt.view)
			}
			if got := CanManageUsers(tt.role); got != tt.manage {
				t.Errorf("CanManageUsers = %v, want %v", got, tt.manage)
			}
		})
	}
	if !ValidRole(RoleAnalyst) {
		t.Error("Expected analyst to be a valid role")
	}
	if ValidRole("observer") {
		t.Error("Expected observer to be rejected")
	}
}

func TestClaimsContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("Expected no claims on a bare context")
	}

	ctx := NewContext(context.Background(), &Claims{Username: "alice"})
	claims, ok := FromContext(ctx)
	if !ok {
		t.Fatal("Expected claims on context")
	}
	if claims.Username != "alice" {
		t.Errorf("Expected alice, got %s", claims.Username)
	}
}
