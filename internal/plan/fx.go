package plan

import (
	"github.com/smallbiznis/subscriptiond/internal/plan/repository"
	"github.com/smallbiznis/subscriptiond/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
