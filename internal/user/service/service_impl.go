package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/clubgate/internal/clock"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"github.com/smallbiznis/clubgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  userdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        userdomain.Repository
	linkCodeTTL time.Duration
}

type Config struct {
	LinkCodeTTL time.Duration
}

func New(p Params, cfg Config) userdomain.Service {
	ttl := cfg.LinkCodeTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("user.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		linkCodeTTL: ttl,
	}
}

func (s *Service) Register(ctx context.Context, req userdomain.RegisterRequest) (userdomain.User, error) {
	if req.TelegramUserID != nil {
		existing, err := s.repo.FindByTelegramID(ctx, s.db, *req.TelegramUserID)
		if err != nil {
			return userdomain.User{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	now := s.clock.Now()
	user := userdomain.User{
		ID:             s.genID.Generate(),
		TelegramUserID: req.TelegramUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &user); err != nil {
		if db.IsDuplicateKeyErr(err) && req.TelegramUserID != nil {
			// Lost the race against a concurrent first contact; the row exists now.
			existing, findErr := s.repo.FindByTelegramID(ctx, s.db, *req.TelegramUserID)
			if findErr == nil && existing != nil {
				return *existing, nil
			}
		}
		return userdomain.User{}, err
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (userdomain.User, error) {
	if id <= 0 {
		return userdomain.User{}, userdomain.ErrInvalidID
	}
	user, err := s.repo.FindByID(ctx, s.db, snowflake.ID(id))
	if err != nil {
		return userdomain.User{}, err
	}
	if user == nil {
		return userdomain.User{}, userdomain.ErrNotFound
	}
	return *user, nil
}

func (s *Service) GetOrCreateByTelegramID(ctx context.Context, telegramUserID int64) (userdomain.User, error) {
	return s.Register(ctx, userdomain.RegisterRequest{TelegramUserID: &telegramUserID})
}

func (s *Service) RequestLinkCode(ctx context.Context, userID int64) (userdomain.LinkInstruction, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return userdomain.LinkInstruction{}, err
	}

	if user.TelegramUserID != nil {
		return userdomain.LinkInstruction{
			AlreadyLinked:  true,
			TelegramUserID: user.TelegramUserID,
			Message:        "Already linked",
		}, nil
	}

	return userdomain.LinkInstruction{
		Message: fmt.Sprintf("Open the bot and send: /link %d", userID),
	}, nil
}

func (s *Service) IssueLinkCode(ctx context.Context, userID int64, telegramUserID int64) (userdomain.LinkCode, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return userdomain.LinkCode{}, err
	}
	if user.TelegramUserID != nil {
		return userdomain.LinkCode{}, userdomain.ErrAlreadyLinked
	}

	now := s.clock.Now()
	code := userdomain.LinkCode{
		ID:             s.genID.Generate(),
		UserID:         user.ID,
		TelegramUserID: telegramUserID,
		Code:           newLinkCode(),
		ExpiresAt:      now.Add(s.linkCodeTTL),
		CreatedAt:      now,
	}
	if err := s.repo.InsertLinkCode(ctx, s.db, &code); err != nil {
		return userdomain.LinkCode{}, err
	}
	return code, nil
}

func (s *Service) ConfirmLinkCode(ctx context.Context, userID int64, code string) (userdomain.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return userdomain.User{}, err
	}

	row, err := s.repo.FindLinkCode(ctx, s.db, user.ID, code)
	if err != nil {
		return userdomain.User{}, err
	}
	if row == nil {
		return userdomain.User{}, userdomain.ErrCodeNotFound
	}
	if row.UsedAt != nil {
		return userdomain.User{}, userdomain.ErrCodeConsumed
	}
	now := s.clock.Now()
	if now.After(row.ExpiresAt) {
		return userdomain.User{}, userdomain.ErrCodeExpired
	}

	// Consume before linking: a concurrent duplicate confirmation loses the
	// guarded update and never touches the user row.
	consumed, err := s.repo.ConsumeLinkCode(ctx, s.db, row.ID, now)
	if err != nil {
		return userdomain.User{}, err
	}
	if !consumed {
		return userdomain.User{}, userdomain.ErrCodeConsumed
	}

	if err := s.repo.SetTelegramID(ctx, s.db, user.ID, row.TelegramUserID, now); err != nil {
		return userdomain.User{}, err
	}

	linked, err := s.repo.FindByID(ctx, s.db, user.ID)
	if err != nil {
		return userdomain.User{}, err
	}
	return *linked, nil
}

// newLinkCode derives a short uppercase code from a ULID's entropy tail.
func newLinkCode() string {
	id := ulid.Make().String()
	return id[len(id)-8:]
}
