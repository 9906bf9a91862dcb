package rubric

import (
	"github.com/mentora-app/mentora/internal/rubric/repository"
	"github.com/mentora-app/mentora/internal/rubric/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rubric.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
