package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"barledger/backend/internal/domain"
	"barledger/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

type castStoreStub struct {
	members map[string]domain.CastMember
}

func (s castStoreStub) GetCastMemberByUsername(_ context.Context, username string) (*domain.CastMember, error) {
	member, ok := s.members[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &member, nil
}

func mustHashSecret(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, "123456", users, nil)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, _ := users.ListUsers(context.Background())
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected password to be upgraded to bcrypt, got %s", stored[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, "123456", users, nil)

	created, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "Kuroki", Password: "pass1234"})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if created.Username != "kuroki" || created.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff user %+v", created)
	}

	stored := users.users["kuroki"]
	if stored.Password == "pass1234" || !strings.HasPrefix(stored.Password, "$2") {
		t.Fatalf("expected staff password to be hashed, got %s", stored.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "kuroki", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with new staff failed: %v", err)
	}
	if resp.Role != domain.RoleStaff {
		t.Fatalf("expected staff role, got %s", resp.Role)
	}

	if _, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "kuroki", Password: "pass5678"}); err == nil {
		t.Fatalf("expected duplicate username to fail")
	}
	if len(manager.ListStaff(context.Background())) != 1 {
		t.Fatalf("expected one staff user listed")
	}
}

func TestManagerPINIsHashedAndStillValidates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "654321", &userStoreStub{}, nil)

	if manager.managerPIN == "654321" {
		t.Fatalf("expected manager pin to be stored as hash, got plain-text")
	}
	if !manager.ValidateManagerPIN("654321") {
		t.Fatalf("expected manager pin validation to succeed")
	}
	if manager.ValidateManagerPIN("111111") {
		t.Fatalf("expected wrong manager pin to fail")
	}
}

func TestCastLoginCarriesCastID(t *testing.T) {
	casts := castStoreStub{members: map[string]domain.CastMember{
		"akari": {ID: "cast-akari", Username: "akari", PINHash: mustHashSecret(t, "4826"), Active: true},
		"rin":   {ID: "cast-rin", Username: "rin", PINHash: mustHashSecret(t, "1111"), Active: false},
	}}
	manager := NewAuthManager("test-secret", time.Hour, "123456", nil, casts)

	resp, err := manager.CastLogin(context.Background(), domain.CastLoginRequest{Username: "Akari", PIN: "4826"})
	if err != nil {
		t.Fatalf("cast login failed: %v", err)
	}
	if resp.CastID != "cast-akari" || resp.Role != domain.RoleCast {
		t.Fatalf("unexpected cast login response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.CastID != "cast-akari" || actor.Role != domain.RoleCast || actor.Username != "akari" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	if _, err := manager.CastLogin(context.Background(), domain.CastLoginRequest{Username: "akari", PIN: "0000"}); err == nil {
		t.Fatalf("expected wrong pin to fail")
	}
	if _, err := manager.CastLogin(context.Background(), domain.CastLoginRequest{Username: "rin", PIN: "1111"}); err != errInactiveAccount {
		t.Fatalf("expected inactive account error, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"staff": {Username: "staff", Password: mustHashSecret(t, "staff123"), Role: domain.RoleStaff, Active: true},
	}}
	issuer := NewAuthManager("secret-one", time.Hour, "123456", users, nil)
	verifier := NewAuthManager("secret-two", time.Hour, "123456", users, nil)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "staff", Password: "staff123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := issuer.ParseToken(resp.AccessToken); err != nil {
		t.Fatalf("expected issuer to accept its own token: %v", err)
	}
}
