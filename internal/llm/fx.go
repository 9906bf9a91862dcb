package llm

import (
	"github.com/mentora-app/mentora/internal/config"
	obsmetrics "github.com/mentora-app/mentora/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the OpenAI-compatible adapter behind the retry policy.
var Module = fx.Module("llm.client",
	fx.Provide(func(cfg config.Config, log *zap.Logger) Client {
		base := NewOpenAICompat(cfg.LLM)
		return NewRetrying(base, cfg.LLM, log,
			WithAttemptObserver(func(kind string) {
				obsmetrics.Grading().IncLLMAttempt(kind)
			}),
		)
	}),
)
