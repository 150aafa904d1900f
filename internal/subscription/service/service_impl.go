package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/subscriptiond/internal/auth/domain"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/observability/metrics"
	plandomain "github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"github.com/smallbiznis/subscriptiond/internal/subscription/changefeed"
	"github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/subscriptiond/internal/subscription/repository"
	"github.com/smallbiznis/subscriptiond/pkg/db"
	"github.com/smallbiznis/subscriptiond/pkg/db/option"
	"github.com/smallbiznis/subscriptiond/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	PlanSvc plandomain.Service

	Changes changefeed.Publisher `optional:"true"`
	Metrics *metrics.Metrics     `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	store repository.Repository[domain.Subscription]

	planSvc plandomain.Service
	changes changefeed.Publisher
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("subscription.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		store:   repository.ProvideStore[domain.Subscription](p.DB),
		planSvc: p.PlanSvc,
		changes: p.Changes,
		metrics: p.Metrics,
	}
}

func (s *Service) GetCurrent(ctx context.Context, userID snowflake.ID, role authdomain.Role) (*domain.Subscription, error) {
	if role == authdomain.RoleAdmin {
		return nil, nil
	}

	sub, err := s.repo.FindLive(ctx, s.db, userID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}
	if err := s.attachPlan(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) HasAccess(ctx context.Context, userID snowflake.ID, role authdomain.Role) (bool, error) {
	if role == authdomain.RoleAdmin {
		return true, nil
	}
	sub, err := s.repo.FindLive(ctx, s.db, userID, s.clock.Now())
	if err != nil {
		return false, err
	}
	return sub != nil, nil
}

func (s *Service) Subscribe(ctx context.Context, userID snowflake.ID, planRef string) (*domain.Subscription, error) {
	plan, err := s.planSvc.Resolve(ctx, planRef)
	if err != nil {
		return nil, err
	}

	res, err := s.Activate(ctx, domain.ActivateRequest{
		UserID: userID,
		Plan:   plan,
		Source: domain.SourceManual,
	})
	if err != nil {
		return nil, err
	}
	return res.Subscription, nil
}

func (s *Service) Activate(ctx context.Context, req domain.ActivateRequest) (*domain.ActivateResult, error) {
	if req.Plan == nil || req.UserID == 0 {
		return nil, errors.New("activate: user and plan are required")
	}

	var result *domain.ActivateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := s.lockAndExpire(ctx, tx, req.UserID, now); err != nil {
			return err
		}

		var err error
		result, err = s.insertLive(ctx, tx, req, now)
		return err
	})
	if err != nil {
		return nil, s.mapWriteErr(err)
	}

	result.Subscription.Plan = req.Plan
	if result.Created {
		s.log.Info("subscription activated",
			zap.String("subscription_id", result.Subscription.ID.String()),
			zap.String("user_id", req.UserID.String()),
			zap.String("plan_id", req.Plan.ID.String()),
			zap.String("source", string(req.Source)),
		)
		s.metrics.RecordActivation(ctx, string(req.Source))
		s.publish(ctx, result.Subscription, changefeed.ReasonActivated)
	}
	return result, nil
}

func (s *Service) Upgrade(ctx context.Context, userID snowflake.ID, newPlanRef string) (*domain.Subscription, error) {
	plan, err := s.planSvc.Resolve(ctx, newPlanRef)
	if err != nil {
		return nil, err
	}

	var created *domain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := s.lockAndExpire(ctx, tx, userID, now); err != nil {
			return err
		}

		current, err := s.repo.FindLive(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		if _, err := s.repo.MarkCancelled(ctx, tx, current.ID, now); err != nil {
			return err
		}

		res, err := s.insertLive(ctx, tx, domain.ActivateRequest{
			UserID: userID,
			Plan:   plan,
			Source: domain.SourceUpgrade,
		}, now)
		if err != nil {
			return err
		}
		created = res.Subscription
		return nil
	})
	if err != nil {
		return nil, s.mapWriteErr(err)
	}

	created.Plan = plan
	s.log.Info("subscription upgraded",
		zap.String("subscription_id", created.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("plan_id", plan.ID.String()),
	)
	s.metrics.RecordActivation(ctx, string(domain.SourceUpgrade))
	s.publish(ctx, created, changefeed.ReasonUpgraded)
	return created, nil
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelRequest) (*domain.Subscription, error) {
	var cancelled *domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		ownerID := req.RequesterID
		if req.SubscriptionID != 0 {
			target, err := s.repo.FindByID(ctx, tx, req.SubscriptionID)
			if err != nil {
				return err
			}
			if target == nil {
				return domain.ErrNotFound
			}
			if target.UserID != req.RequesterID && req.RequesterRole != authdomain.RoleAdmin {
				return domain.ErrForbidden
			}
			ownerID = target.UserID
		}

		if err := s.lockAndExpire(ctx, tx, ownerID, now); err != nil {
			return err
		}

		targetID := req.SubscriptionID
		if targetID == 0 {
			own, err := s.repo.FindActiveByUser(ctx, tx, ownerID)
			if err != nil {
				return err
			}
			if own == nil {
				return domain.ErrNotFound
			}
			targetID = own.ID
		}

		affected, err := s.repo.MarkCancelled(ctx, tx, targetID, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}

		cancelled, err = s.repo.FindByID(ctx, tx, targetID)
		return err
	})
	if err != nil {
		return nil, s.mapWriteErr(err)
	}

	s.log.Info("subscription cancelled",
		zap.String("subscription_id", cancelled.ID.String()),
		zap.String("user_id", cancelled.UserID.String()),
		zap.String("requester_id", req.RequesterID.String()),
	)
	s.publish(ctx, cancelled, changefeed.ReasonCancelled)
	return cancelled, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	status := domain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != "" && !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	now := s.clock.Now()
	filter := domain.ListFilter{Status: status, Now: now}

	var opts []option.QueryOption
	if where, args := subscriptionrepo.StatusCondition("", filter); where != "" {
		opts = append(opts, option.WithWhere(where, args...))
	}
	count, err := s.store.Count(ctx, opts...)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListDetailed(ctx, s.db, filter, req.Pagination)
	if err != nil {
		return nil, err
	}

	views := make([]domain.AdminView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toAdminView(row, now))
	}
	return &domain.ListResponse{
		Subscriptions: views,
		PageInfo:      paginationInfo(req, count),
	}, nil
}

func (s *Service) SweepLapsed(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.clock.Now()

	var expired []domain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lapsed, err := s.repo.FindLapsed(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		for _, sub := range lapsed {
			n, err := s.repo.MarkExpired(ctx, tx, sub.ID, now)
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			sub.Status = domain.StatusExpired
			sub.UpdatedAt = now
			expired = append(expired, sub)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range expired {
		s.publish(ctx, &expired[i], changefeed.ReasonExpired)
	}
	return len(expired), nil
}

// lockAndExpire serializes writers for one user and retires lapsed rows so
// the active-row unique index only ever sees live subscriptions.
func (s *Service) lockAndExpire(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) error {
	found, err := s.repo.LockUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrUserNotFound
	}
	expired, err := s.repo.ExpireLapsed(ctx, tx, userID, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Debug("lapsed subscriptions expired", zap.String("user_id", userID.String()), zap.Int64("count", expired))
	}
	return nil
}

// insertLive must run after lockAndExpire in the same transaction.
func (s *Service) insertLive(ctx context.Context, tx *gorm.DB, req domain.ActivateRequest, now time.Time) (*domain.ActivateResult, error) {
	existing, err := s.repo.FindLive(ctx, tx, req.UserID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if req.SamePlanIsNoop && existing.PlanID == req.Plan.ID {
			return &domain.ActivateResult{Subscription: existing}, nil
		}
		return nil, domain.ErrAlreadySubscribed
	}

	sub := &domain.Subscription{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		PlanID:    req.Plan.ID,
		StartDate: now,
		EndDate:   domain.EndDateFor(now, req.Plan.DurationDays),
		Status:    domain.StatusActive,
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, sub); err != nil {
		return nil, err
	}
	return &domain.ActivateResult{Subscription: sub, Created: true}, nil
}

func (s *Service) mapWriteErr(err error) error {
	if db.IsDuplicateKeyErr(err) {
		return domain.ErrAlreadySubscribed
	}
	return err
}

func (s *Service) attachPlan(ctx context.Context, sub *domain.Subscription) error {
	plan, err := s.planSvc.Get(ctx, sub.PlanID.String())
	if err != nil {
		if errors.Is(err, plandomain.ErrNotFound) {
			return nil
		}
		return err
	}
	sub.Plan = plan
	return nil
}

func (s *Service) publish(ctx context.Context, sub *domain.Subscription, reason string) {
	if s.changes == nil || sub == nil {
		return
	}
	s.changes.Publish(ctx, changefeed.Event{
		UserID:         sub.UserID.String(),
		SubscriptionID: sub.ID.String(),
		PlanID:         sub.PlanID.String(),
		Status:         string(sub.Status),
		Reason:         reason,
		OccurredAt:     s.clock.Now(),
	})
}
