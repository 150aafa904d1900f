package subscription

import (
	"github.com/smallbiznis/subscriptiond/internal/subscription/changefeed"
	"github.com/smallbiznis/subscriptiond/internal/subscription/repository"
	"github.com/smallbiznis/subscriptiond/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	changefeed.Module,
)
