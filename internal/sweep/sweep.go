package sweep

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"github.com/smallbiznis/clubgate/internal/clock"
	"github.com/smallbiznis/clubgate/internal/notify"
	obsmetrics "github.com/smallbiznis/clubgate/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobName = "membership_sweep"
	lockKey = "clubgate:sweep:lock"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Access   accessdomain.Service
	Notifier notify.Notifier
	Locker   *Locker `optional:"true"`
	Config   Config  `optional:"true"`
}

// Sweeper expires lapsed subscriptions and removes their members from the
// group. It is the only writer of the ACTIVE to EXPIRED transition.
type Sweeper struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	access   accessdomain.Service
	notifier notify.Notifier
	locker   *Locker
}

type Result struct {
	Scanned  int
	Expired  int
	Revoked  int
	Deferred int
}

func New(p Params) *Sweeper {
	return &Sweeper{
		db:       p.DB,
		log:      p.Log.Named("sweep").With(zap.String("component", "sweep")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		access:   p.Access,
		notifier: p.Notifier,
		locker:   p.Locker,
	}
}

// RunOnce executes one sweep under the single-flight lock. A held lock means
// another sweeper is mid-run and this invocation is a no-op.
func (s *Sweeper) RunOnce(parent context.Context) (Result, error) {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.Timeout)
	defer cancel()

	sweepMetrics := obsmetrics.Sweep()
	sweepMetrics.IncRun(jobName)
	defer func() {
		sweepMetrics.ObserveDuration(jobName, time.Since(start))
	}()

	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			sweepMetrics.IncError(jobName, err)
			return Result{}, err
		}
		if !acquired {
			s.log.Info("sweep already running elsewhere, skipping")
			return Result{}, nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				s.log.Warn("lock release failed", zap.Error(err))
			}
		}()
	}

	result, err := s.sweep(ctx)
	sweepMetrics.AddExpired(jobName, result.Expired)
	sweepMetrics.AddRevoked(jobName, result.Revoked)
	sweepMetrics.AddDeferred(jobName, result.Deferred)
	if err != nil {
		sweepMetrics.IncError(jobName, err)
		return result, err
	}

	if result.Scanned > 0 {
		s.log.Info("sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("expired", result.Expired),
			zap.Int("revoked", result.Revoked),
			zap.Int("deferred", result.Deferred),
		)
	}
	return result, nil
}

type candidate struct {
	SubscriptionID snowflake.ID
	UserID         snowflake.ID
	Status         subscriptiondomain.SubscriptionStatus
	TelegramUserID *int64
	AccessID       *int64
}

// sweep picks each user's latest subscription row when it has lapsed. ACTIVE
// rows are expired and their member removed; already terminal rows (EXPIRED,
// CANCELED) are included only while a live access row remains, so a revoke
// that failed on a previous run is retried.
func (s *Sweeper) sweep(ctx context.Context) (Result, error) {
	now := s.clock.Now()

	var candidates []candidate
	err := s.db.WithContext(ctx).Raw(
		`SELECT s.id AS subscription_id,
		        s.user_id AS user_id,
		        s.status AS status,
		        u.telegram_user_id AS telegram_user_id,
		        ta.id AS access_id
		 FROM subscriptions s
		 LEFT JOIN users u ON u.id = s.user_id
		 LEFT JOIN telegram_access ta ON ta.user_id = s.user_id AND ta.removed_at IS NULL
		 WHERE s.current_period_end IS NOT NULL
		   AND s.current_period_end < ?
		   AND s.id = (SELECT MAX(s2.id) FROM subscriptions s2 WHERE s2.user_id = s.user_id)
		   AND (s.status = ? OR (s.status IN (?, ?) AND ta.id IS NOT NULL))
		 ORDER BY s.id
		 LIMIT ?`,
		now,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusExpired,
		subscriptiondomain.SubscriptionStatusCanceled,
		s.cfg.BatchSize,
	).Scan(&candidates).Error
	if err != nil {
		return Result{}, err
	}

	result := Result{Scanned: len(candidates)}
	for _, c := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if c.Status == subscriptiondomain.SubscriptionStatusActive {
			// Guarded so a renewal that lands between the scan and this write
			// keeps the subscription ACTIVE untouched.
			expired := s.db.WithContext(ctx).Exec(
				`UPDATE subscriptions
				 SET status = ?, updated_at = ?
				 WHERE id = ? AND status = ? AND current_period_end < ?`,
				subscriptiondomain.SubscriptionStatusExpired,
				now,
				c.SubscriptionID,
				subscriptiondomain.SubscriptionStatusActive,
				now,
			)
			if expired.Error != nil {
				return result, expired.Error
			}
			if expired.RowsAffected == 0 {
				s.log.Info("subscription renewed mid-sweep, skipping",
					zap.String("subscription_id", c.SubscriptionID.String()),
				)
				continue
			}
			result.Expired++
		}

		if c.TelegramUserID == nil || c.AccessID == nil {
			continue
		}
		if err := s.access.Revoke(ctx, int64(c.UserID), *c.TelegramUserID); err != nil {
			// The access row stays live, so the next run retries the kick.
			s.log.Warn("revoke failed, deferring to next run",
				zap.String("user_id", c.UserID.String()),
				zap.Error(err),
			)
			result.Deferred++
			continue
		}
		result.Revoked++
		s.notifier.SubscriptionExpired(ctx, *c.TelegramUserID)
	}

	return result, nil
}
