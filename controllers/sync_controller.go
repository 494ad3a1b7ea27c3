package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestRefresh asks for a full pull. The pull may run later if one is in
// flight or the last one finished too recently.
func RequestRefresh(c *gin.Context) {
	defer recordOperation(c, "refresh")

	if err := backOffice.RefreshAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// SyncOrders pushes every cached order and lists the ones that failed.
func SyncOrders(c *gin.Context) {
	defer recordOperation(c, "sync_orders")

	res, err := backOffice.SyncOrders(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

func ListOutbox(c *gin.Context) {
	c.JSON(http.StatusOK, backOffice.Pending())
}

func DrainOutbox(c *gin.Context) {
	defer recordOperation(c, "drain_outbox")

	c.JSON(http.StatusOK, backOffice.PushPending(c.Request.Context()))
}
