package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"medtrack/api/internal/config"
	"medtrack/api/internal/ids"
	"medtrack/api/internal/metrics"
	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByDiscordID(ctx context.Context, discordID string) (models.User, error)
	LinkDiscordID(ctx context.Context, userID string, discordID string) error
	Delete(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByTokenHash(ctx context.Context, tokenHash []byte, now time.Time) (models.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash []byte) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
}

// AuthService owns session issuance, validation, and revocation. Raw
// tokens never touch the database: only their sha256 digest is stored,
// and validity is re-checked against the store on every call so a
// revoked token dies immediately.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	cfg      *config.AppConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewAuthService(users UserStore, sessions SessionStore, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// IssueSession mints a fresh opaque token for uid. Fails with
// repository.ErrUserNotFound for an unknown uid. Existing sessions are
// untouched: a user may hold any number of concurrent sessions.
func (s *AuthService) IssueSession(ctx context.Context, uid string) (string, error) {
	s.sweep(ctx)

	if _, err := s.users.GetByID(ctx, uid); err != nil {
		return "", err
	}

	token, tokenHash, err := security.GenerateToken(32)
	if err != nil {
		return "", err
	}

	session := models.Session{
		ID:        ids.New(),
		UserID:    uid,
		TokenHash: tokenHash,
		ExpiresAt: s.now().Add(s.cfg.Security.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}

	metrics.SessionsIssued.Inc()
	return token, nil
}

// ValidateSession resolves a token to its owning uid. The invalid
// cases, unknown and expired, are indistinguishable to the caller and
// are reported as ok=false with a nil error.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (string, bool, error) {
	s.sweep(ctx)

	if token == "" {
		return "", false, nil
	}

	session, err := s.sessions.FindByTokenHash(ctx, security.HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return session.UserID, true, nil
}

// RevokeSession deletes the token and reports whether it existed.
// Revoking an already-revoked token is a no-op.
func (s *AuthService) RevokeSession(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return s.sessions.DeleteByTokenHash(ctx, security.HashToken(token))
}

// sweep opportunistically removes expired rows. The lookup predicate
// already excludes expired sessions, so a sweep failure only delays
// cleanup and is not worth failing the caller over.
func (s *AuthService) sweep(ctx context.Context) {
	n, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Warn().Err(err).Msg("session sweep failed")
		return
	}
	if n > 0 {
		metrics.SessionsSwept.Add(float64(n))
	}
}

type SignupInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	User  models.User
	Token string
}

func (s *AuthService) Signup(ctx context.Context, input SignupInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" || input.Password == "" {
		return AuthResult{}, fmt.Errorf("email and password required")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, fmt.Errorf("email already registered")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
		CreatedVia:   models.CreatedViaSignup,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, err
	}

	token, err := s.IssueSession(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) Login(ctx context.Context, email string, password string) (AuthResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if len(user.PasswordHash) == 0 {
		// Discord-created account with no password set.
		return AuthResult{}, ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	token, err := s.IssueSession(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Token: token}, nil
}

// LoginWithDiscord finds the user owning the discord identity,
// creating one on first authentication, and issues a session.
func (s *AuthService) LoginWithDiscord(ctx context.Context, discordID string, displayName string) (AuthResult, error) {
	user, err := s.users.FindByDiscordID(ctx, discordID)
	if errors.Is(err, repository.ErrUserNotFound) {
		user = models.User{
			ID:          ids.New(),
			DiscordID:   &discordID,
			DisplayName: displayName,
			CreatedVia:  models.CreatedViaDiscord,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return AuthResult{}, err
		}
	} else if err != nil {
		return AuthResult{}, err
	}

	token, err := s.IssueSession(ctx, user.ID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: user, Token: token}, nil
}

// LinkDiscord attaches a discord identity to uid. An identity already
// owned by another user surfaces repository.ErrDiscordAlreadyLinked
// rather than being silently moved.
func (s *AuthService) LinkDiscord(ctx context.Context, uid string, discordID string) error {
	return s.users.LinkDiscordID(ctx, uid, discordID)
}

func (s *AuthService) GetUser(ctx context.Context, uid string) (models.User, error) {
	return s.users.GetByID(ctx, uid)
}

func (s *AuthService) ListSessions(ctx context.Context, uid string) ([]models.Session, error) {
	return s.sessions.ListByUser(ctx, uid)
}

// SessionCount reports how many sessions uid currently holds,
// expired rows included until a sweep removes them.
func (s *AuthService) SessionCount(ctx context.Context, uid string) (int, error) {
	return s.sessions.CountByUser(ctx, uid)
}

// DeleteAccount removes the user; sessions, codes, and medications
// follow via foreign-key cascade.
func (s *AuthService) DeleteAccount(ctx context.Context, uid string) error {
	return s.users.Delete(ctx, uid)
}
