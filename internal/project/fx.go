package project

import (
	"github.com/smallbiznis/seometer/internal/project/repository"
	"github.com/smallbiznis/seometer/internal/project/service"
	"go.uber.org/fx"
)

var Module = fx.Module("project.service",
	fx.Provide(repository.Provide),
	fx.Provide(repository.NewCounter),
	fx.Provide(service.NewService),
)
