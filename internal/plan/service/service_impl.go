package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	"github.com/smallbiznis/subscriptiond/internal/plan/domain"
	"github.com/smallbiznis/subscriptiond/pkg/db"
	"github.com/smallbiznis/subscriptiond/pkg/validation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.List(ctx, s.db, false)
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]domain.Plan, error) {
	return s.repo.List(ctx, s.db, includeInactive)
}

func (s *Service) Get(ctx context.Context, ref string) (*domain.Plan, error) {
	return s.lookup(ctx, s.db, ref)
}

func (s *Service) Resolve(ctx context.Context, ref string) (*domain.Plan, error) {
	p, err := s.lookup(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// lookup tries the reference as an internal id, then as a provider price id,
// then as a slug.
func (s *Service) lookup(ctx context.Context, db *gorm.DB, ref string) (*domain.Plan, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrNotFound
	}

	if id, err := snowflake.ParseString(ref); err == nil && id > 0 {
		p, err := s.repo.FindByID(ctx, db, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return p, nil
		}
	}

	p, err := s.repo.FindByPriceID(ctx, db, ref)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	p, err = s.repo.FindBySlug(ctx, db, ref)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Plan, error) {
	req = normalizeCreate(req)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var created *domain.Plan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByName(ctx, tx, req.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrNameTaken
		}

		created = s.newPlan(req)
		return s.repo.Insert(ctx, tx, created)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrNameTaken
		}
		return nil, err
	}

	s.log.Info("plan created", zap.String("plan_id", created.ID.String()), zap.String("slug", created.Slug))
	return created, nil
}

func (s *Service) Update(ctx context.Context, ref string, req domain.UpdateRequest) (*domain.Plan, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var updated *domain.Plan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := s.lookup(ctx, tx, ref)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if !strings.EqualFold(name, p.Name) {
				other, err := s.repo.FindByName(ctx, tx, name)
				if err != nil {
					return err
				}
				if other != nil && other.ID != p.ID {
					return domain.ErrNameTaken
				}
			}
			p.Name = name
		}
		if req.Description != nil {
			p.Description = strings.TrimSpace(*req.Description)
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
		if req.DurationDays != nil {
			p.DurationDays = *req.DurationDays
		}
		if req.Features != nil {
			p.Features = datatypes.JSONSlice[string](trimAll(*req.Features))
		}
		if req.PriceID != nil {
			p.PriceID = optional(*req.PriceID)
		}
		if req.IsActive != nil {
			p.IsActive = *req.IsActive
		}
		p.UpdatedAt = s.clock.Now()

		updated = p
		return s.repo.Update(ctx, tx, p)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrNameTaken
		}
		return nil, err
	}
	return updated, nil
}

func (s *Service) Deactivate(ctx context.Context, ref string) (*domain.Plan, error) {
	inactive := false
	p, err := s.Update(ctx, ref, domain.UpdateRequest{IsActive: &inactive})
	if err != nil {
		return nil, err
	}
	s.log.Info("plan deactivated", zap.String("plan_id", p.ID.String()))
	return p, nil
}

func (s *Service) Sync(ctx context.Context, plans []domain.CreateRequest) error {
	for _, req := range plans {
		req = normalizeCreate(req)
		if err := validation.Struct(req); err != nil {
			return err
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			existing, err := s.repo.FindByName(ctx, tx, req.Name)
			if err != nil {
				return err
			}
			if existing == nil {
				return s.repo.Insert(ctx, tx, s.newPlan(req))
			}

			existing.Description = req.Description
			existing.Price = req.Price
			existing.DurationDays = req.DurationDays
			existing.Features = datatypes.JSONSlice[string](req.Features)
			if req.PriceID != "" {
				existing.PriceID = optional(req.PriceID)
			}
			existing.UpdatedAt = s.clock.Now()
			return s.repo.Update(ctx, tx, existing)
		})
		if err != nil {
			return err
		}
	}

	s.log.Info("plan catalog synced", zap.Int("plans", len(plans)))
	return nil
}

func (s *Service) newPlan(req domain.CreateRequest) *domain.Plan {
	now := s.clock.Now()
	return &domain.Plan{
		ID:           s.genID.Generate(),
		Name:         req.Name,
		Slug:         req.Slug,
		Description:  req.Description,
		Price:        req.Price,
		Currency:     req.Currency,
		DurationDays: req.DurationDays,
		Features:     datatypes.JSONSlice[string](req.Features),
		PriceID:      optional(req.PriceID),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func normalizeCreate(req domain.CreateRequest) domain.CreateRequest {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.PriceID = strings.TrimSpace(req.PriceID)
	req.Features = trimAll(req.Features)

	req.Slug = strings.TrimSpace(req.Slug)
	if req.Slug == "" {
		req.Slug = req.Name
	}
	req.Slug = slug.Make(req.Slug)

	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = domain.DefaultCurrency
	}
	return req
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
