package grading

import (
	"github.com/mentora-app/mentora/internal/grading/repository"
	"github.com/mentora-app/mentora/internal/grading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(service.NewOrchestrator),
)
