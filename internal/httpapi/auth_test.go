package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zianad/facturepro-ai/internal/domain"
	"github.com/zianad/facturepro-ai/internal/store"
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
	if _, exists := s.users[user.Username]; exists {
		return store.ErrDuplicateUser
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

func newStubWithAdmin(password string) *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  password,
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	userStore := newStubWithAdmin("admin123")

	manager := NewAuthManager("test-secret", time.Hour, userStore)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := userStore.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
	if userStore.updates != 1 {
		t.Fatalf("expected one password upgrade, got %d", userStore.updates)
	}
}

func TestLoginIssuesTokenCarryingRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newStubWithAdmin(mustHashPassword(t, "admin123")))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " ADMIN ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	userStore := newStubWithAdmin(mustHashPassword(t, "admin123"))
	userStore.users["ghost"] = domain.UserAccount{
		Username: "ghost",
		Password: mustHashPassword(t, "ghost1234"),
		Role:     domain.RoleUser,
		Active:   false,
	}
	manager := NewAuthManager("test-secret", time.Hour, userStore)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "ghost1234"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	userStore := newStubWithAdmin(mustHashPassword(t, "admin123"))
	issuer := NewAuthManager("secret-one", time.Hour, userStore)
	verifier := NewAuthManager("secret-two", time.Hour, userStore)

	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	userStore := newStubWithAdmin("admin123")

	manager := NewAuthManager("test-secret", time.Hour, userStore)
	account, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{
		Username: "Comptable",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if account.Username != "comptable" || account.Role != domain.RoleUser {
		t.Fatalf("unexpected account %+v", account)
	}
	if account.Password != "" {
		t.Fatalf("expected returned account to omit the password hash")
	}

	users, err := userStore.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "comptable" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected user to be saved")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "comptable", Password: "pass1234"}); err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}
}

func TestCreateUserValidates(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, newStubWithAdmin("admin123"))
	ctx := context.Background()

	cases := []domain.UserCreateRequest{
		{Username: "abc", Password: "pass1234"},
		{Username: "with space", Password: "pass1234"},
		{Username: "shortpw", Password: "123"},
		{Username: "badrole", Password: "pass1234", Role: "owner"},
	}
	for i, req := range cases {
		if _, err := manager.CreateUser(ctx, req); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}

	if _, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "admin", Password: "pass1234"}); !errors.Is(err, store.ErrDuplicateUser) {
		t.Fatalf("expected ErrDuplicateUser, got %v", err)
	}
}

func TestListUsersSortedWithoutPasswords(t *testing.T) {
	userStore := newStubWithAdmin("admin123")
	manager := NewAuthManager("test-secret", time.Hour, userStore)
	if _, err := manager.CreateUser(context.Background(), domain.UserCreateRequest{Username: "bertrand", Password: "pass1234"}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	users := manager.ListUsers(context.Background())
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Username != "admin" || users[1].Username != "bertrand" {
		t.Fatalf("unexpected order %s, %s", users[0].Username, users[1].Username)
	}
	for _, user := range users {
		if user.Password != "" {
			t.Fatalf("expected password to be omitted for %s", user.Username)
		}
	}
}
