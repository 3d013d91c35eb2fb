package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"medtrack/api/internal/config"
	"medtrack/api/internal/ids"
	"medtrack/api/internal/metrics"
	"medtrack/api/internal/models"
	"medtrack/api/internal/repository"
	"medtrack/api/internal/security"
)

const linkCodeDigits = 6

type CodeStore interface {
	Create(ctx context.Context, code models.EphemeralCode) error
	Consume(ctx context.Context, kind models.CodeKind, codeHash []byte, now time.Time) (string, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LinkService issues and redeems the two single-use code spaces that
// bridge the bot and browser channels: short typeable link codes and
// long opaque connect tokens. The two kinds share storage but never
// validate across kinds.
//
// Issuing a code does not invalidate earlier unexpired codes for the
// same user; several may be outstanding at once and each redeems
// independently.
type LinkService struct {
	users UserStore
	codes CodeStore
	cfg   *config.AppConfig
	log   zerolog.Logger
	now   func() time.Time
}

func NewLinkService(users UserStore, codes CodeStore, cfg *config.AppConfig, log zerolog.Logger) *LinkService {
	return &LinkService{
		users: users,
		codes: codes,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

// IssueLinkCode mints a short numeric code for uid, valid for a few
// minutes and for exactly one redemption.
func (s *LinkService) IssueLinkCode(ctx context.Context, uid string) (string, error) {
	return s.issue(ctx, uid, models.CodeKindLink, s.cfg.Security.LinkCodeTTL)
}

// IssueConnectToken mints a long opaque single-use token for uid.
func (s *LinkService) IssueConnectToken(ctx context.Context, uid string) (string, error) {
	return s.issue(ctx, uid, models.CodeKindConnect, s.cfg.Security.ConnectTokenTTL)
}

func (s *LinkService) issue(ctx context.Context, uid string, kind models.CodeKind, ttl time.Duration) (string, error) {
	s.sweep(ctx)

	if _, err := s.users.GetByID(ctx, uid); err != nil {
		return "", err
	}

	var (
		code     string
		codeHash []byte
		err      error
	)
	if kind == models.CodeKindLink {
		code, codeHash, err = security.GenerateLinkCode(linkCodeDigits)
	} else {
		code, codeHash, err = security.GenerateToken(32)
	}
	if err != nil {
		return "", err
	}

	record := models.EphemeralCode{
		ID:        ids.New(),
		UserID:    uid,
		Kind:      kind,
		CodeHash:  codeHash,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.codes.Create(ctx, record); err != nil {
		return "", err
	}

	metrics.CodesIssued.WithLabelValues(string(kind)).Inc()
	return code, nil
}

// ValidateLinkCode redeems a link code, consuming it in the same
// store operation that resolves the owner. A second redemption, even
// a concurrent one, reports ok=false.
func (s *LinkService) ValidateLinkCode(ctx context.Context, code string) (string, bool, error) {
	return s.validate(ctx, models.CodeKindLink, code)
}

// ValidateConnectToken redeems a connect token with the same
// single-use semantics as link codes.
func (s *LinkService) ValidateConnectToken(ctx context.Context, token string) (string, bool, error) {
	return s.validate(ctx, models.CodeKindConnect, token)
}

func (s *LinkService) validate(ctx context.Context, kind models.CodeKind, code string) (string, bool, error) {
	if code == "" {
		return "", false, nil
	}

	uid, err := s.codes.Consume(ctx, kind, security.HashToken(code), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return uid, true, nil
}

func (s *LinkService) sweep(ctx context.Context) {
	if _, err := s.codes.DeleteExpired(ctx, s.now()); err != nil {
		s.log.Warn().Err(err).Msg("code sweep failed")
	}
}
