package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clubgate/internal/access/domain"
	"github.com/smallbiznis/clubgate/internal/clock"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"github.com/smallbiznis/clubgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config pins the gated chat. One deployment manages one group.
type Config struct {
	GroupChatID int64
}

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	UserRepo      userdomain.Repository
	Subscriptions subscriptiondomain.Service
	Group         domain.GroupClient
	Config        Config
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	userRepo      userdomain.Repository
	subscriptions subscriptiondomain.Service
	group         domain.GroupClient
	cfg           Config
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("access.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		userRepo:      p.UserRepo,
		subscriptions: p.Subscriptions,
		group:         p.Group,
		cfg:           p.Config,
	}
}

func (s *Service) Grant(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", domain.ErrInvalidUserID
	}

	// Mint before touching the database: a platform failure must not leave a
	// row claiming access that was never offered.
	inviteLink, err := s.group.CreateInviteLink(ctx, s.cfg.GroupChatID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGroupFailure, err)
	}

	uid := snowflake.ID(userID)
	now := s.clock.Now()

	applied, err := s.repo.Reinstate(ctx, s.db, uid, s.cfg.GroupChatID, inviteLink, now)
	if err != nil {
		return "", err
	}
	if applied {
		return inviteLink, nil
	}

	grant := domain.AccessGrant{
		ID:             s.genID.Generate(),
		UserID:         uid,
		ChatID:         s.cfg.GroupChatID,
		InviteLink:     &inviteLink,
		JoinedAt:       &now,
		LastVerifiedAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &grant); err != nil {
		// Concurrent grant for the same pair: the other writer's row is as
		// good as ours, refresh it with this link instead.
		if db.IsDuplicateKeyErr(err) {
			if _, rerr := s.repo.Reinstate(ctx, s.db, uid, s.cfg.GroupChatID, inviteLink, now); rerr != nil {
				return "", rerr
			}
			return inviteLink, nil
		}
		return "", err
	}
	return inviteLink, nil
}

func (s *Service) Revoke(ctx context.Context, userID int64, telegramUserID int64) error {
	if userID <= 0 {
		return domain.ErrInvalidUserID
	}

	if err := s.group.Kick(ctx, s.cfg.GroupChatID, telegramUserID); err != nil {
		if err != domain.ErrAlreadyAbsent {
			// Leave removed_at unset so the next sweep retries the kick.
			return fmt.Errorf("%w: %v", domain.ErrGroupFailure, err)
		}
		s.log.Info("member already absent on revoke",
			zap.Int64("user_id", userID),
			zap.Int64("telegram_user_id", telegramUserID),
		)
	}

	applied, err := s.repo.MarkRemoved(ctx, s.db, snowflake.ID(userID), s.cfg.GroupChatID, s.clock.Now())
	if err != nil {
		return err
	}
	if !applied {
		s.log.Info("revoke with no live access row", zap.Int64("user_id", userID))
	}
	return nil
}

func (s *Service) VerifyJoin(ctx context.Context, telegramUserID int64) (bool, error) {
	user, err := s.userRepo.FindByTelegramID(ctx, s.db, telegramUserID)
	if err != nil {
		return false, err
	}
	if user == nil {
		s.log.Warn("unknown member joined, kicking", zap.Int64("telegram_user_id", telegramUserID))
		return false, s.kickIntruder(ctx, telegramUserID)
	}

	entitled, err := s.subscriptions.HasActiveSubscription(ctx, int64(user.ID))
	if err != nil {
		return false, err
	}
	if !entitled {
		s.log.Warn("unentitled member joined, kicking",
			zap.Int64("telegram_user_id", telegramUserID),
			zap.String("user_id", user.ID.String()),
		)
		return false, s.kickIntruder(ctx, telegramUserID)
	}

	now := s.clock.Now()
	applied, err := s.repo.MarkJoined(ctx, s.db, user.ID, s.cfg.GroupChatID, now)
	if err != nil {
		return false, err
	}
	if !applied {
		// Entitled but joined without a recorded grant (invite forwarded out
		// of band, or the grant row was removed). Record the membership.
		grant := domain.AccessGrant{
			ID:             s.genID.Generate(),
			UserID:         user.ID,
			ChatID:         s.cfg.GroupChatID,
			JoinedAt:       &now,
			LastVerifiedAt: &now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.Insert(ctx, s.db, &grant); err != nil && !db.IsDuplicateKeyErr(err) {
			return false, err
		}
	}
	return true, nil
}

func (s *Service) kickIntruder(ctx context.Context, telegramUserID int64) error {
	if err := s.group.Kick(ctx, s.cfg.GroupChatID, telegramUserID); err != nil && err != domain.ErrAlreadyAbsent {
		return fmt.Errorf("%w: %v", domain.ErrGroupFailure, err)
	}
	return nil
}

func (s *Service) CurrentInvite(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", domain.ErrInvalidUserID
	}

	grant, err := s.repo.FindByUserAndChat(ctx, s.db, snowflake.ID(userID), s.cfg.GroupChatID)
	if err != nil {
		return "", err
	}
	if grant == nil || grant.RemovedAt != nil || grant.InviteLink == nil {
		return "", nil
	}
	return *grant.InviteLink, nil
}
