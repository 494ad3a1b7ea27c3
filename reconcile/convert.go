package reconcile

import (
	"backoffice-sync/models"
	"backoffice-sync/remote"
)

func customerRow(remoteID string, c models.Customer) remote.CustomerRow {
	row := remote.CustomerRow{
		ID:        remoteID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		CreatedAt: c.CreatedAt,
	}
	if c.Tour != nil {
		row.TourName = c.Tour.TourName
		row.Sector = c.Tour.Sector
		row.SeatNumber = c.Tour.SeatNumber
		row.City = c.Tour.City
		row.State = c.Tour.State
		row.DepartureTime = c.Tour.DepartureTime
	}
	return row
}

func customerPatch(row remote.CustomerRow) remote.Patch {
	return remote.Patch{
		"name":           row.Name,
		"email":          row.Email,
		"phone":          row.Phone,
		"address":        row.Address,
		"tour_name":      row.TourName,
		"sector":         row.Sector,
		"seat_number":    row.SeatNumber,
		"city":           row.City,
		"state":          row.State,
		"departure_time": row.DepartureTime,
	}
}

// applyCustomerRow copies the remote scalar fields onto c. Remote wins for
// every scalar; the id, creation time and orders are left alone.
func applyCustomerRow(c *models.Customer, row remote.CustomerRow) {
	c.Name = row.Name
	c.Email = row.Email
	c.Phone = row.Phone
	c.Address = row.Address
	c.Tour = nil
	if row.TourName != "" || row.Sector != "" || row.SeatNumber != "" ||
		row.City != "" || row.State != "" || row.DepartureTime != "" {
		c.Tour = &models.TourBooking{
			TourName:      row.TourName,
			Sector:        row.Sector,
			SeatNumber:    row.SeatNumber,
			City:          row.City,
			State:         row.State,
			DepartureTime: row.DepartureTime,
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = row.CreatedAt
	}
}

func orderRow(remoteID, remoteCustomerID string, o models.Order) remote.OrderRow {
	return remote.OrderRow{
		ID:         remoteID,
		CustomerID: remoteCustomerID,
		Status:     string(o.Status),
		Total:      o.Total,
		CreatedAt:  o.CreatedAt,
	}
}

func productRow(remoteID string, p models.Product) remote.ProductRow {
	return remote.ProductRow{
		ID:          remoteID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Stock:       p.Stock,
		Images:      remote.StringList(p.Images),
		CreatedAt:   p.CreatedAt,
	}
}

func productPatch(row remote.ProductRow) remote.Patch {
	return remote.Patch{
		"name":        row.Name,
		"description": row.Description,
		"price":       row.Price,
		"stock":       row.Stock,
		"images":      row.Images,
	}
}
