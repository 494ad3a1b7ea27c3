package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice-sync/middlewares"
	"backoffice-sync/service"
)

var backOffice *service.BackOffice

func SetBackOffice(b *service.BackOffice) {
	backOffice = b
}

// RegisterRoutes mounts the admin handlers on an already authenticated group.
func RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/customers", ListCustomers)
	api.POST("/customers", CreateCustomer)
	api.GET("/customers/:id", GetCustomer)
	api.PUT("/customers/:id", UpdateCustomer)
	api.DELETE("/customers/:id", DeleteCustomer)

	api.POST("/customers/:id/orders", CreateOrder)
	api.PUT("/customers/:id/orders/:orderId", UpdateOrder)
	api.PUT("/customers/:id/orders/:orderId/status", UpdateOrderStatus)
	api.DELETE("/customers/:id/orders/:orderId", DeleteOrder)

	api.GET("/products", ListProducts)
	api.POST("/products", CreateProduct)
	api.GET("/products/:id", GetProduct)
	api.PUT("/products/:id", UpdateProduct)
	api.DELETE("/products/:id", DeleteProduct)

	api.GET("/shipments", ListShipments)
	api.POST("/shipments", CreateShipment)
	api.GET("/shipments/:id", GetShipment)
	api.GET("/shipments/:id/customers", GetShipmentCustomers)
	api.PUT("/shipments/:id", UpdateShipment)
	api.DELETE("/shipments/:id", DeleteShipment)

	api.POST("/sync/refresh", RequestRefresh)
	api.POST("/sync/orders", SyncOrders)
	api.GET("/sync/outbox", ListOutbox)
	api.POST("/sync/outbox/drain", DrainOutbox)
}

func recordOperation(c *gin.Context, operation string) {
	ok := c.Writer.Status() >= 200 && c.Writer.Status() < 300
	middlewares.RecordOperation(middlewares.Resource(c.FullPath()), operation, ok)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
