package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/rubric/domain"
	"github.com/mentora-app/mentora/pkg/cache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rubricCacheTTL = 10 * time.Minute

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	cache cache.Cache[snowflake.ID, *domain.Rubric]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rubric.service"),
		repo:  p.Repo,
		cache: cache.NewTTLCache[snowflake.ID, *domain.Rubric](),
	}
}

func (s *Service) GetByQuestion(ctx context.Context, questionID snowflake.ID) (*domain.Rubric, error) {
	if questionID == 0 {
		return nil, domain.ErrNotFound
	}

	if rubric, ok := s.cache.Get(questionID); ok {
		return rubric, nil
	}

	rubric, err := s.repo.FindByQuestion(ctx, s.db, questionID)
	if err != nil {
		return nil, err
	}
	if rubric == nil {
		return nil, domain.ErrNotFound
	}

	s.cache.Set(questionID, rubric, rubricCacheTTL)
	return rubric, nil
}
