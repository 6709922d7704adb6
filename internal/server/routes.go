package server

import (
	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/middleware"
)

type Handlers struct {
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	AdminOrder   *handler.AdminOrderHandler
	AdminProduct *handler.AdminProductHandler
}

func (s *Server) RegisterRoutes(cfg config.Config, h Handlers) {
	auth := middleware.AuthJWT(cfg)
	adminGuard := middleware.AdminRoleGuard()

	h.Auth.RegisterRoutes(s.echo)
	h.Product.RegisterRoutes(s.echo)
	h.Cart.RegisterRoutes(s.echo, auth)
	h.Order.RegisterRoutes(s.echo, auth)
	h.AdminOrder.RegisterRoutes(s.echo, auth, adminGuard)
	h.AdminProduct.RegisterRoutes(s.echo, auth, adminGuard)
}
