package payment

import (
	disputerepo "github.com/smallbiznis/recurra/internal/payment/dispute/repository"
	disputeservice "github.com/smallbiznis/recurra/internal/payment/dispute/service"
	paymentdomain "github.com/smallbiznis/recurra/internal/payment/domain"
	"github.com/smallbiznis/recurra/internal/payment/repository"
	paymentservice "github.com/smallbiznis/recurra/internal/payment/service"
	subscriptiondomain "github.com/smallbiznis/recurra/internal/subscription/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(disputerepo.Provide),
	fx.Provide(
		fx.Annotate(
			paymentservice.NewService,
			fx.As(new(paymentdomain.Service)),
			fx.As(new(subscriptiondomain.InitialCharger)),
		),
	),
	fx.Provide(disputeservice.NewService),
)
