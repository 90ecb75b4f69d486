package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tour-booking/internal/handler"
	"github.com/iliyamo/tour-booking/internal/middleware"
	"github.com/iliyamo/tour-booking/internal/model"
)

// accountRoles are the roles of registered users.  Guest tokens only reach
// the booking they were issued for.
var accountRoles = []string{model.RoleCustomer, model.RoleMerchant, model.RoleAdmin}

// RegisterRoutes registers the probes.  db may be nil, in which case only
// liveness is exposed.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers account endpoints.  Register, login, refresh and
// logout live under /v1/auth without a session; /v1/me needs a token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.RequireRole(accountRoles...))
}

// RegisterCatalog registers the public tour catalogue.  cache wraps the
// listing and detail reads; availability is never cached.
func RegisterCatalog(e *echo.Echo, t *handler.TourHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/tours", t.List, cache)
	e.GET("/v1/tours/:id", t.Get, cache)
	e.GET("/v1/tours/:id/availability", t.Availability)
}

// RegisterBookings registers the booking endpoints.  Creation accepts guests
// and is rate limited; everything else needs a token.  A guest token from
// the create response works on its own booking's read, update and checkout.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	e.POST("/v1/bookings", b.Create, middleware.OptionalJWT(jwtSecret), limiter)

	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	g.GET("/bookings/:id", b.Get)
	g.PUT("/bookings/:id", b.Update)
	g.POST("/bookings/:id/checkout", b.Checkout)
	g.GET("/my-bookings", b.Mine, middleware.RequireRole(accountRoles...))
}

// RegisterMerchant registers the merchant back office.  Admins are let in
// as well; ownership of individual tours is checked by the engine.
func RegisterMerchant(e *echo.Echo, m *handler.MerchantHandler, t *handler.TourHandler, jwtSecret string) {
	g := e.Group(
		"/v1/merchant",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMerchant, model.RoleAdmin),
	)
	g.GET("/bookings", m.Bookings)
	g.POST("/tours", t.Create)
	g.PUT("/tours/:id/inventory/:date", m.PutInventory)

	admin := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	admin.POST("/tours/:id/inventory/:date/reconcile", m.Reconcile)
}

// RegisterPayments registers the payment provider callback.  It is
// authenticated by the provider's signature, not by a token.
func RegisterPayments(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/payment-webhook", w.Receive)
}

// RegisterNotifications registers the in-app inbox.
func RegisterNotifications(e *echo.Echo, n *handler.NotificationHandler, jwtSecret string) {
	g := e.Group("/v1/notifications", middleware.JWTAuth(jwtSecret), middleware.RequireRole(accountRoles...))
	g.GET("", n.List)
	g.PUT("/:id/read", n.MarkRead)
}
