package usagelog

import (
	"github.com/mentora-app/mentora/internal/usagelog/repository"
	"github.com/mentora-app/mentora/internal/usagelog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usagelog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
