// Package httpapi exposes the dispatch services over a JSON REST API.
package httpapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/dispatch-core/internal/logger"
	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/service"
)

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Auth    *service.AuthService
	Cities  *service.CityService
	Drivers *service.DriverService
	Orders  *service.OrderService
	Sheets  *service.DelegateSheetService
	Reports *service.ReportService
	// Checks are pinged by /healthz, keyed by component name.
	Checks map[string]Pinger
	Log    *logger.Logger
}

type Handler struct {
	auth    *service.AuthService
	cities  *service.CityService
	drivers *service.DriverService
	orders  *service.OrderService
	sheets  *service.DelegateSheetService
	reports *service.ReportService
	checks  map[string]Pinger
	log     *logger.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		auth:    d.Auth,
		cities:  d.Cities,
		drivers: d.Drivers,
		orders:  d.Orders,
		sheets:  d.Sheets,
		reports: d.Reports,
		checks:  d.Checks,
		log:     d.Log.With("component", "http"),
	}
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", h.health)

	authGroup := r.Group("/auth")
	authGroup.POST("/register", h.authenticate(true), h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/logout", h.authenticate(false), h.logout)
	authGroup.POST("/verification-tokens", h.authenticate(false), requireRole(model.RoleAdmin), h.createVerificationToken)
	authGroup.POST("/verification-tokens/use", h.useVerificationToken)

	api := r.Group("/", h.authenticate(false))
	api.GET("/me", h.me)

	admin := requireRole(model.RoleAdmin)
	operators := requireRole(model.RoleAdmin, model.RoleDispatcher)

	cities := api.Group("/cities")
	cities.GET("", h.listCities)
	cities.POST("", admin, h.createCity)
	cities.PATCH("/:id", admin, h.renameCity)
	cities.DELETE("/:id", admin, h.deleteCity)

	drivers := api.Group("/drivers")
	drivers.GET("", h.listDrivers)
	drivers.GET("/:id", h.getDriver)
	drivers.POST("", admin, h.createDriver)
	drivers.PATCH("/:id", admin, h.updateDriver)
	drivers.DELETE("/:id", admin, h.deleteDriver)

	orders := api.Group("/orders")
	orders.GET("", h.listOrders)
	orders.GET("/:id", h.getOrder)
	orders.GET("/barcode/:barcode", h.getOrderByBarcode)
	orders.POST("", operators, h.createOrder)
	orders.PATCH("/:id", operators, h.updateOrder)
	orders.POST("/:id/assign", operators, h.assignOrder)
	orders.POST("/:id/unassign", operators, h.unassignOrder)
	orders.POST("/:id/status", operators, h.updateOrderStatus)
	orders.DELETE("/:id", operators, h.deleteOrder)

	sheets := api.Group("/delegate-sheets")
	sheets.GET("", h.listSheets)
	sheets.GET("/:id", h.getSheet)
	sheets.GET("/barcode/:barcode", h.getSheetByBarcode)
	sheets.POST("", operators, h.createSheet)
	sheets.POST("/:id/orders", operators, h.addSheetOrders)
	sheets.DELETE("/:id/orders/:orderId", operators, h.removeSheetOrder)
	sheets.POST("/:id/reconcile", requireRole(model.RoleAdmin, model.RoleDispatcher, model.RoleAccountant), h.reconcileSheet)
	sheets.DELETE("/:id", operators, h.deleteSheet)

	api.GET("/reports/summary", requireRole(model.RoleAdmin, model.RoleAccountant), h.reportSummary)

	return r
}

// NewServer wraps the router into an http.Server with sane timeouts.
func NewServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	components := make(gin.H, len(names))
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			h.log.WarnContext(ctx, "health check failed", "component", name, "err", err)
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "components": components})
}
