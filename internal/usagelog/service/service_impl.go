package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cockroachdb/apd/v3"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	obsmetrics "github.com/mentora-app/mentora/internal/observability/metrics"
	"github.com/mentora-app/mentora/internal/usagelog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// USD amounts are quantized to micro-dollar precision.
const costExponent = -6

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository

	priceIn   apd.Decimal
	priceOut  apd.Decimal
	threshold apd.Decimal
}

func New(p Params) (domain.Accountant, error) {
	s := &Service{
		db:    p.DB,
		log:   p.Log.Named("usagelog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}

	if err := setDecimal(&s.priceIn, p.Config.Pricing.InputPricePerToken); err != nil {
		return nil, fmt.Errorf("input token price: %w", err)
	}
	if err := setDecimal(&s.priceOut, p.Config.Pricing.OutputPricePerToken); err != nil {
		return nil, fmt.Errorf("output token price: %w", err)
	}
	if err := setDecimal(&s.threshold, p.Config.Pricing.AlertThresholdUSD); err != nil {
		return nil, fmt.Errorf("cost alert threshold: %w", err)
	}

	return s, nil
}

func (s *Service) CalculateCost(tokensIn, tokensOut int64) float64 {
	ctx := apd.BaseContext.WithPrecision(34)

	var inCost, outCost, total apd.Decimal
	ctx.Mul(&inCost, &s.priceIn, apd.New(tokensIn, 0))
	ctx.Mul(&outCost, &s.priceOut, apd.New(tokensOut, 0))
	ctx.Add(&total, &inCost, &outCost)

	ctx.Rounding = apd.RoundHalfUp
	ctx.Quantize(&total, &total, costExponent)

	cost, _ := total.Float64()
	return cost
}

func (s *Service) LogUsage(ctx context.Context, req domain.LogRequest) bool {
	now := s.clock.Now().UTC()
	entry := &domain.UsageLogEntry{
		ID:           s.genID.Generate(),
		StudentID:    req.StudentID,
		Feature:      req.Feature,
		ReferenceID:  req.ReferenceID,
		TokensInput:  req.TokensInput,
		TokensOutput: req.TokensOutput,
		CostUSD:      req.CostUSD,
		LatencyMS:    req.LatencyMS,
		Success:      req.Success,
		CreatedAt:    now,
	}
	if req.ErrorCode != "" {
		entry.ErrorCode = &req.ErrorCode
	}
	if req.ErrorMessage != "" {
		entry.ErrorMessage = &req.ErrorMessage
	}

	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		// The audit trail is best effort: the grading result is already
		// persisted and must not be unwound because accounting hiccuped.
		s.log.Error("usage log write failed",
			zap.String("student_id", req.StudentID.String()),
			zap.String("reference_id", req.ReferenceID.String()),
			zap.Error(err),
		)
		return false
	}

	obsmetrics.Grading().AddUsageCost(req.CostUSD)

	return s.evaluateAlert(ctx, req.StudentID, now)
}

func (s *Service) evaluateAlert(ctx context.Context, studentID snowflake.ID, now time.Time) bool {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	total, err := s.repo.MonthToDateCost(ctx, s.db, studentID, monthStart)
	if err != nil {
		s.log.Warn("month-to-date cost query failed", zap.Error(err))
		return false
	}

	var totalDec apd.Decimal
	if _, err := totalDec.SetFloat64(total); err != nil {
		return false
	}
	if totalDec.Cmp(&s.threshold) < 0 {
		return false
	}

	obsmetrics.Grading().IncCostAlert()
	s.log.Warn("monthly cost alert threshold exceeded",
		zap.String("student_id", studentID.String()),
		zap.Float64("month_to_date_usd", total),
		zap.String("threshold_usd", s.threshold.String()),
	)
	return true
}

func setDecimal(dst *apd.Decimal, value string) error {
	if _, _, err := dst.SetString(value); err != nil {
		return fmt.Errorf("invalid decimal %q: %w", value, err)
	}
	return nil
}
