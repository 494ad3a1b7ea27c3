package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice-sync/models"
	"backoffice-sync/service"
)

type customerRequest struct {
	Name    string              `json:"name" binding:"required"`
	Email   string              `json:"email" binding:"omitempty,email"`
	Phone   string              `json:"phone"`
	Address string              `json:"address"`
	Tour    *models.TourBooking `json:"tour"`
}

func (r customerRequest) input() service.CustomerInput {
	return service.CustomerInput{
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Address: r.Address,
		Tour:    r.Tour,
	}
}

type customerResponse struct {
	models.Customer
	Orders []orderResponse `json:"orders"`
}

func newCustomerResponse(c models.Customer) customerResponse {
	resp := customerResponse{Customer: c, Orders: make([]orderResponse, 0, len(c.Orders))}
	for _, o := range c.Orders {
		resp.Orders = append(resp.Orders, newOrderResponse(o))
	}
	return resp
}

func newCustomerResponses(in []models.Customer) []customerResponse {
	out := make([]customerResponse, 0, len(in))
	for _, c := range in {
		out = append(out, newCustomerResponse(c))
	}
	return out
}

// ListCustomers returns every cached customer; ?pending=true keeps only
// those with at least one pending order.
func ListCustomers(c *gin.Context) {
	if c.Query("pending") == "true" {
		c.JSON(http.StatusOK, newCustomerResponses(backOffice.PendingCustomers()))
		return
	}
	c.JSON(http.StatusOK, newCustomerResponses(backOffice.Customers()))
}

func GetCustomer(c *gin.Context) {
	customer, err := backOffice.Customer(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCustomerResponse(customer))
}

func CreateCustomer(c *gin.Context) {
	defer recordOperation(c, "create_customer")

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customer, err := backOffice.AddCustomer(req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCustomerResponse(customer))
}

func UpdateCustomer(c *gin.Context) {
	defer recordOperation(c, "update_customer")

	var req customerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	customer, err := backOffice.UpdateCustomer(c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCustomerResponse(customer))
}

func DeleteCustomer(c *gin.Context) {
	defer recordOperation(c, "delete_customer")

	if err := backOffice.DeleteCustomer(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
