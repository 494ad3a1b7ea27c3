package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"backoffice-sync/models"
	"backoffice-sync/service"
)

type lineRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type createOrderRequest struct {
	Items []lineRequest `json:"items" binding:"required,min=1,dive"`
}

type updateOrderRequest struct {
	Items  []lineRequest       `json:"items" binding:"omitempty,min=1,dive"`
	Total  *decimal.Decimal    `json:"total"`
	Status *models.OrderStatus `json:"status" binding:"omitempty,oneof=pending completed cancelled"`
}

type statusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required,oneof=pending completed cancelled"`
}

type orderResponse struct {
	models.Order
	TotalMismatch bool `json:"total_mismatch"`
}

func newOrderResponse(o models.Order) orderResponse {
	return orderResponse{Order: o, TotalMismatch: o.TotalMismatch()}
}

func lineInputs(in []lineRequest) []service.LineInput {
	if in == nil {
		return nil
	}
	out := make([]service.LineInput, 0, len(in))
	for _, l := range in {
		out = append(out, service.LineInput{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return out
}

func CreateOrder(c *gin.Context) {
	defer recordOperation(c, "create_order")

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := backOffice.AddOrder(c.Param("id"), lineInputs(req.Items))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

// UpdateOrder replaces items, total or status. A total that no longer matches
// the items is kept as sent and flagged in the response.
func UpdateOrder(c *gin.Context) {
	defer recordOperation(c, "update_order")

	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := backOffice.UpdateOrder(c.Param("id"), c.Param("orderId"), service.OrderUpdate{
		Items:  lineInputs(req.Items),
		Total:  req.Total,
		Status: req.Status,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func UpdateOrderStatus(c *gin.Context) {
	defer recordOperation(c, "update_order_status")

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := backOffice.UpdateOrderStatus(c.Param("id"), c.Param("orderId"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	userID, _ := c.Get("userID")
	log.Printf("[api] order %s set to %s by %v", order.ID, order.Status, userID)
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func DeleteOrder(c *gin.Context) {
	defer recordOperation(c, "delete_order")

	if err := backOffice.DeleteOrder(c.Param("id"), c.Param("orderId")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
