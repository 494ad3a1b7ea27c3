package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type shipmentRequest struct {
	Name        string   `json:"name"`
	CustomerIDs []string `json:"customer_ids" binding:"required,min=1"`
}

func ListShipments(c *gin.Context) {
	c.JSON(http.StatusOK, backOffice.Shipments())
}

func GetShipment(c *gin.Context) {
	shipment, err := backOffice.Shipment(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

// GetShipmentCustomers resolves the membership snapshot; deleted customers are left out.
func GetShipmentCustomers(c *gin.Context) {
	customers, err := backOffice.ShipmentCustomers(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCustomerResponses(customers))
}

func CreateShipment(c *gin.Context) {
	defer recordOperation(c, "create_shipment")

	var req shipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shipment, err := backOffice.CreateShipment(req.Name, req.CustomerIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, shipment)
}

func UpdateShipment(c *gin.Context) {
	defer recordOperation(c, "update_shipment")

	var req shipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	shipment, err := backOffice.UpdateShipment(c.Param("id"), req.Name, req.CustomerIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shipment)
}

func DeleteShipment(c *gin.Context) {
	defer recordOperation(c, "delete_shipment")

	if err := backOffice.DeleteShipment(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
