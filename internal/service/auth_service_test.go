package service

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"medtrack/api/internal/config"
	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
)

// ---- fakes ----

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeUserStore(users ...models.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if user.DiscordID != nil && existing.DiscordID != nil && *existing.DiscordID == *user.DiscordID {
			return repository.ErrDiscordAlreadyLinked
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *fakeUserStore) FindByDiscordID(_ context.Context, discordID string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.DiscordID != nil && *user.DiscordID == discordID {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (s *fakeUserStore) LinkDiscordID(_ context.Context, userID string, discordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, user := range s.users {
		if id != userID && user.DiscordID != nil && *user.DiscordID == discordID {
			return repository.ErrDiscordAlreadyLinked
		}
	}
	user, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.DiscordID = &discordID
	s.users[userID] = user
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.Session // keyed by session id
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]models.Session)}
}

func (s *fakeSessionStore) Create(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *fakeSessionStore) FindByTokenHash(_ context.Context, tokenHash []byte, now time.Time) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if bytes.Equal(session.TokenHash, tokenHash) && session.ExpiresAt.After(now) {
			return session, nil
		}
	}
	return models.Session{}, repository.ErrSessionNotFound
}

func (s *fakeSessionStore) DeleteByTokenHash(_ context.Context, tokenHash []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if bytes.Equal(session.TokenHash, tokenHash) {
			delete(s.sessions, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeSessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeSessionStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, session := range s.sessions {
		if session.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *fakeSessionStore) ListByUser(_ context.Context, userID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *fakeSessionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ---- helpers ----

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			SessionTTL:      30 * 24 * time.Hour,
			LinkCodeTTL:     10 * time.Minute,
			ConnectTokenTTL: 10 * time.Minute,
		},
	}
}

func newAuthService(users *fakeUserStore, sessions *fakeSessionStore) *AuthService {
	return NewAuthService(users, sessions, testConfig(), zerolog.Nop())
}

// ---- sessions ----

func TestIssueSession_UnknownUser(t *testing.T) {
	svc := newAuthService(newFakeUserStore(), newFakeSessionStore())

	if _, err := svc.IssueSession(context.Background(), "uid_missing"); err != repository.ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestIssueAndValidateSession(t *testing.T) {
	svc := newAuthService(newFakeUserStore(models.User{ID: "uid_1"}), newFakeSessionStore())

	token, err := svc.IssueSession(context.Background(), "uid_1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	uid, ok, err := svc.ValidateSession(context.Background(), token)
	if err != nil || !ok {
		t.Fatalf("validate: ok=%v err=%v", ok, err)
	}
	if uid != "uid_1" {
		t.Errorf("uid = %q, want uid_1", uid)
	}
}

func TestValidateSession_UnknownToken(t *testing.T) {
	svc := newAuthService(newFakeUserStore(), newFakeSessionStore())

	_, ok, err := svc.ValidateSession(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("unknown token validated")
	}
}

func TestValidateSession_ExpiredToken(t *testing.T) {
	sessions := newFakeSessionStore()
	svc := newAuthService(newFakeUserStore(models.User{ID: "uid_1"}), sessions)

	issued := time.Now()
	svc.now = func() time.Time { return issued }

	token, err := svc.IssueSession(context.Background(), "uid_1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Still valid one hour before the horizon.
	svc.now = func() time.Time { return issued.Add(30*24*time.Hour - time.Hour) }
	if _, ok, _ := svc.ValidateSession(context.Background(), token); !ok {
		t.Fatal("token invalid before expiry horizon")
	}

	// Invalid once the horizon has elapsed, and the sweep removes the row.
	svc.now = func() time.Time { return issued.Add(30*24*time.Hour + time.Minute) }
	if _, ok, _ := svc.ValidateSession(context.Background(), token); ok {
		t.Fatal("expired token validated")
	}
	if sessions.count() != 0 {
		t.Errorf("expired session not swept, %d rows remain", sessions.count())
	}
}

func TestRevokeSession(t *testing.T) {
	svc := newAuthService(newFakeUserStore(models.User{ID: "uid_1"}), newFakeSessionStore())

	token, err := svc.IssueSession(context.Background(), "uid_1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	existed, err := svc.RevokeSession(context.Background(), token)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !existed {
		t.Error("revoke reported token missing")
	}

	if _, ok, _ := svc.ValidateSession(context.Background(), token); ok {
		t.Error("revoked token still validates")
	}

	// Idempotent second revoke.
	existed, err = svc.RevokeSession(context.Background(), token)
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if existed {
		t.Error("second revoke reported token present")
	}
}

func TestConcurrentSessions_BothValid(t *testing.T) {
	svc := newAuthService(newFakeUserStore(models.User{ID: "uid_1"}), newFakeSessionStore())

	t1, err := svc.IssueSession(context.Background(), "uid_1")
	if err != nil {
		t.Fatalf("issue t1: %v", err)
	}
	t2, err := svc.IssueSession(context.Background(), "uid_1")
	if err != nil {
		t.Fatalf("issue t2: %v", err)
	}
	if t1 == t2 {
		t.Fatal("two issuances produced the same token")
	}

	if _, ok, _ := svc.ValidateSession(context.Background(), t1); !ok {
		t.Error("t1 invalid")
	}
	if _, ok, _ := svc.ValidateSession(context.Background(), t2); !ok {
		t.Error("t2 invalid")
	}

	count, err := svc.SessionCount(context.Background(), "uid_1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("session count = %d, want 2", count)
	}
}

// ---- signup / login ----

func TestSignupAndLogin(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuthService(users, newFakeSessionStore())

	result, err := svc.Signup(context.Background(), SignupInput{
		Email:       "Carol@Example.com",
		Password:    "correct horse battery",
		DisplayName: "Carol",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if result.User.Email != "carol@example.com" {
		t.Errorf("email not normalized: %q", result.User.Email)
	}
	if result.User.CreatedVia != models.CreatedViaSignup {
		t.Errorf("createdVia = %q", result.User.CreatedVia)
	}

	login, err := svc.Login(context.Background(), "carol@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.ID != result.User.ID {
		t.Error("login resolved a different user")
	}

	if _, err := svc.Login(context.Background(), "carol@example.com", "wrong"); err != ErrInvalidCredentials {
		t.Errorf("wrong password err = %v, want ErrInvalidCredentials", err)
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc := newAuthService(newFakeUserStore(), newFakeSessionStore())

	input := SignupInput{Email: "a@b.com", Password: "password123", DisplayName: "A"}
	if _, err := svc.Signup(context.Background(), input); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if _, err := svc.Signup(context.Background(), input); err == nil {
		t.Fatal("duplicate signup succeeded")
	}
}

// ---- discord ----

func TestLoginWithDiscord_CreatesOnFirstAuth(t *testing.T) {
	users := newFakeUserStore()
	svc := newAuthService(users, newFakeSessionStore())

	first, err := svc.LoginWithDiscord(context.Background(), "discord-9", "neo")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	if first.User.CreatedVia != models.CreatedViaDiscord {
		t.Errorf("createdVia = %q", first.User.CreatedVia)
	}

	second, err := svc.LoginWithDiscord(context.Background(), "discord-9", "neo")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Error("second login created a new user")
	}
}

func TestLinkDiscord_Conflict(t *testing.T) {
	owned := "discord-1"
	users := newFakeUserStore(
		models.User{ID: "uid_1", DiscordID: &owned},
		models.User{ID: "uid_2"},
	)
	svc := newAuthService(users, newFakeSessionStore())

	if err := svc.LinkDiscord(context.Background(), "uid_2", "discord-1"); err != repository.ErrDiscordAlreadyLinked {
		t.Fatalf("err = %v, want ErrDiscordAlreadyLinked", err)
	}

	if err := svc.LinkDiscord(context.Background(), "uid_2", "discord-2"); err != nil {
		t.Fatalf("link fresh id: %v", err)
	}
}
