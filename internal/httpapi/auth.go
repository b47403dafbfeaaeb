package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"barledger/backend/internal/domain"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
)

type AuthManager struct {
	mu         sync.RWMutex
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	userStore  UserStore
	castStore  CastStore
	accounts   map[string]staffAccount
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// CastStore resolves cast members for PIN login.
type CastStore interface {
	GetCastMemberByUsername(ctx context.Context, username string) (*domain.CastMember, error)
}

type staffAccount struct {
	hash string
	info domain.StaffUser
}

type barClaims struct {
	jwtlib.RegisteredClaims
	Role   string `json:"role"`
	CastID string `json:"cast_id,omitempty"`
}

const tokenIssuer = "barledger"

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore, castStore CastStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	pinHash := ""
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		if hashed, err := hashSecret(pin); err == nil {
			pinHash = hashed
		}
	}

	manager := &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		managerPIN: pinHash,
		userStore:  userStore,
		castStore:  castStore,
		accounts:   make(map[string]staffAccount),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	manager.syncAccounts(ctx)
	return manager
}

// Login authenticates staff and admin accounts by username and password.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.syncAccounts(ctx)
	username := normalizeUsername(req.Username)
	a.mu.RLock()
	account, ok := a.accounts[username]
	a.mu.RUnlock()
	if !ok || !matchSecret(account.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !account.info.Active {
		return domain.LoginResponse{}, errInactiveAccount
	}
	return a.issue(username, account.info.Role, "")
}

// CastLogin authenticates a cast member by username and PIN. The token carries
// the cast ID so every cast request acts on that member only.
func (a *AuthManager) CastLogin(ctx context.Context, req domain.CastLoginRequest) (domain.LoginResponse, error) {
	if a.castStore == nil {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	member, err := a.castStore.GetCastMemberByUsername(ctx, normalizeUsername(req.Username))
	if err != nil || !matchSecret(member.PINHash, req.PIN) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !member.Active {
		return domain.LoginResponse{}, errInactiveAccount
	}
	return a.issue(member.Username, domain.RoleCast, member.ID)
}

func (a *AuthManager) issue(subject string, role string, castID string) (domain.LoginResponse, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(a.tokenTTL)
	claims := barClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role:   role,
		CastID: castID,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.LoginResponse{
		AccessToken: signed,
		Role:        role,
		CastID:      castID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims barClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims, func(*jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("invalid or expired token: %w", err)
	}
	if claims.Subject == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}
	switch claims.Role {
	case domain.RoleAdmin, domain.RoleStaff:
	case domain.RoleCast:
		if claims.CastID == "" {
			return domain.Actor{}, errors.New("cast token without cast id")
		}
	default:
		return domain.Actor{}, fmt.Errorf("token role %q is not recognised", claims.Role)
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role, CastID: claims.CastID}, nil
}

// ValidateManagerPIN reports whether pin matches the configured manager PIN.
// An unset manager PIN never validates.
func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	return a.managerPIN != "" && matchSecret(a.managerPIN, pin)
}

func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffUser, error) {
	a.syncAccounts(ctx)
	username := normalizeUsername(req.Username)
	switch {
	case len(username) < 4:
		return domain.StaffUser{}, fmt.Errorf("username must be at least 4 characters")
	case strings.IndexFunc(username, unicode.IsSpace) >= 0:
		return domain.StaffUser{}, fmt.Errorf("username must not contain spaces")
	case len(strings.TrimSpace(req.Password)) < 6:
		return domain.StaffUser{}, fmt.Errorf("password must be at least 6 characters")
	}

	a.mu.RLock()
	_, taken := a.accounts[username]
	a.mu.RUnlock()
	if taken {
		return domain.StaffUser{}, fmt.Errorf("username already exists")
	}

	hash, err := hashSecret(req.Password)
	if err != nil {
		return domain.StaffUser{}, fmt.Errorf("hash password: %w", err)
	}
	info := domain.StaffUser{Username: username, Role: domain.RoleStaff, Active: true, CreatedAt: time.Now().UTC()}
	if a.userStore != nil {
		account := domain.UserAccount{Username: username, Password: hash, Role: info.Role, Active: true, CreatedAt: info.CreatedAt}
		if err := a.userStore.CreateUser(ctx, account); err != nil {
			return domain.StaffUser{}, err
		}
	}

	a.mu.Lock()
	a.accounts[username] = staffAccount{hash: hash, info: info}
	a.mu.Unlock()
	return info, nil
}

// ListStaff returns every staff and admin account, sorted by username.
func (a *AuthManager) ListStaff(ctx context.Context) []domain.StaffUser {
	a.syncAccounts(ctx)
	a.mu.RLock()
	result := make([]domain.StaffUser, 0, len(a.accounts))
	for _, account := range a.accounts {
		result = append(result, account.info)
	}
	a.mu.RUnlock()
	slices.SortFunc(result, func(x, y domain.StaffUser) int {
		return strings.Compare(x.Username, y.Username)
	})
	return result
}

// syncAccounts reloads staff accounts from the user store. Accounts still
// holding a plain-text password are rehashed and written back.
func (a *AuthManager) syncAccounts(ctx context.Context) {
	if a.userStore == nil {
		return
	}
	stored, err := a.userStore.ListUsers(ctx)
	if err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, user := range stored {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isBcryptHash(hash) {
			upgraded, err := hashSecret(hash)
			if err != nil {
				continue
			}
			hash = upgraded
			_ = a.userStore.UpdateUserPassword(ctx, username, hash)
		}
		a.accounts[username] = staffAccount{
			hash: hash,
			info: domain.StaffUser{Username: username, Role: user.Role, Active: user.Active, CreatedAt: user.CreatedAt},
		}
	}
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// matchSecret compares a password or PIN against its bcrypt hash.
func matchSecret(hash string, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" || !isBcryptHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func hashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isBcryptHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
