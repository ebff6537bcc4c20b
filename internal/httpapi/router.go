// Package httpapi exposes the sale engine, receipts and catalog over REST.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency that can be probed
type Pinger interface {
	Ping() error
}

// Dependency is anything whose health gates readiness
type Dependency interface {
	IsHealthy() bool
}

// NewRouter builds the gin engine with every route mounted
func NewRouter(h *Handler, database Pinger, publisher Dependency, gatherer prometheus.Gatherer, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/readyz", readyHandler(database, publisher, log))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	api.Use(RequireOwner())
	{
		api.GET("/products", h.ListProducts)
		api.POST("/products", h.CreateProduct)
		api.PATCH("/products/:id", h.UpdateProduct)
		api.GET("/products/:id/stock", h.GetStock)
		api.GET("/receipts/:id", h.GetReceipt)
		api.POST("/cashiers", h.CreateCashier)
	}

	till := api.Group("")
	till.Use(RequireCashier())
	{
		till.POST("/sales", h.ProcessSale)
		till.GET("/transactions", h.ListTransactions)
	}

	return r
}

func readyHandler(database Pinger, publisher Dependency, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Ping(); err != nil {
			log.Error("Database health check failed", zap.Error(err))
			c.String(http.StatusServiceUnavailable, "unhealthy: database connection failed")
			return
		}

		if !publisher.IsHealthy() {
			log.Error("RabbitMQ health check failed")
			c.String(http.StatusServiceUnavailable, "unhealthy: rabbitmq connection failed")
			return
		}

		c.String(http.StatusOK, "ready")
	}
}
