package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
	"github.com/mentora-app/mentora/internal/usagelog/domain"
	usagerepo "github.com/mentora-app/mentora/internal/usagelog/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestAccountant(t *testing.T, threshold string) (domain.Accountant, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.UsageLogEntry{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		Pricing: config.PricingConfig{
			InputPricePerToken:  "0.000005",
			OutputPricePerToken: "0.000015",
			AlertThresholdUSD:   threshold,
		},
	}

	acc, err := New(Params{
		Config: cfg,
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)),
		Repo:   usagerepo.Provide(),
	})
	require.NoError(t, err)
	return acc, db
}

func TestCalculateCost(t *testing.T) {
	acc, _ := newTestAccountant(t, "5.00")

	// 1000 in * 0.000005 + 500 out * 0.000015 = 0.0125
	assert.InDelta(t, 0.0125, acc.CalculateCost(1000, 500), 1e-9)
	assert.Zero(t, acc.CalculateCost(0, 0))
}

func TestCalculateCostLinearity(t *testing.T) {
	acc, _ := newTestAccountant(t, "5.00")

	single := acc.CalculateCost(1200, 340)
	double := acc.CalculateCost(2400, 680)
	assert.InDelta(t, 2*single, double, 1e-9)
}

func TestCalculateCostDeterministic(t *testing.T) {
	acc, _ := newTestAccountant(t, "5.00")

	first := acc.CalculateCost(777, 333)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, acc.CalculateCost(777, 333))
	}
}

func TestLogUsagePersistsEntry(t *testing.T) {
	acc, db := newTestAccountant(t, "5.00")
	ctx := context.Background()

	alert := acc.LogUsage(ctx, domain.LogRequest{
		StudentID:    snowflake.ID(42),
		Feature:      quotadomain.FeatureAnswerGrading,
		ReferenceID:  snowflake.ID(7),
		TokensInput:  1000,
		TokensOutput: 500,
		CostUSD:      0.0125,
		LatencyMS:    850,
		Success:      true,
	})
	assert.False(t, alert)

	var entries []domain.UsageLogEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, snowflake.ID(42), entries[0].StudentID)
	assert.InDelta(t, 0.0125, entries[0].CostUSD, 1e-9)
	assert.True(t, entries[0].Success)
	assert.Nil(t, entries[0].ErrorCode)
}

func TestLogUsageFailureCarriesErrorCode(t *testing.T) {
	acc, db := newTestAccountant(t, "5.00")
	ctx := context.Background()

	acc.LogUsage(ctx, domain.LogRequest{
		StudentID:    snowflake.ID(42),
		Feature:      quotadomain.FeatureAnswerGrading,
		ReferenceID:  snowflake.ID(8),
		Success:      false,
		ErrorCode:    "llm_timeout",
		ErrorMessage: "deadline exceeded",
	})

	var entry domain.UsageLogEntry
	require.NoError(t, db.First(&entry).Error)
	assert.False(t, entry.Success)
	require.NotNil(t, entry.ErrorCode)
	assert.Equal(t, "llm_timeout", *entry.ErrorCode)
	assert.Zero(t, entry.TokensInput)
	assert.Zero(t, entry.CostUSD)
}

func TestMonthlyCostAlert(t *testing.T) {
	acc, _ := newTestAccountant(t, "0.02")
	ctx := context.Background()
	studentID := snowflake.ID(99)

	alert := acc.LogUsage(ctx, domain.LogRequest{
		StudentID:   studentID,
		Feature:     quotadomain.FeatureAnswerGrading,
		ReferenceID: snowflake.ID(1),
		CostUSD:     0.015,
		Success:     true,
	})
	assert.False(t, alert)

	// Crossing the threshold flips the advisory flag but the entry still lands.
	alert = acc.LogUsage(ctx, domain.LogRequest{
		StudentID:   studentID,
		Feature:     quotadomain.FeatureAnswerGrading,
		ReferenceID: snowflake.ID(2),
		CostUSD:     0.010,
		Success:     true,
	})
	assert.True(t, alert)
}

func TestAlertScopedPerStudent(t *testing.T) {
	acc, _ := newTestAccountant(t, "0.02")
	ctx := context.Background()

	alert := acc.LogUsage(ctx, domain.LogRequest{
		StudentID:   snowflake.ID(1),
		Feature:     quotadomain.FeatureAnswerGrading,
		ReferenceID: snowflake.ID(1),
		CostUSD:     0.03,
		Success:     true,
	})
	assert.True(t, alert)

	alert = acc.LogUsage(ctx, domain.LogRequest{
		StudentID:   snowflake.ID(2),
		Feature:     quotadomain.FeatureAnswerGrading,
		ReferenceID: snowflake.ID(2),
		CostUSD:     0.005,
		Success:     true,
	})
	assert.False(t, alert)
}
