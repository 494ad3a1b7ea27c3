package models

import "time"

// Shipment holds a snapshot of the customers included in a shipment run.
// It does not own them; a customer may appear in several shipments.
type Shipment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CustomerIDs []string  `json:"customer_ids"`
}

func (s Shipment) Clone() Shipment {
	c := s
	c.CustomerIDs = cloneStrings(s.CustomerIDs)
	return c
}

func CloneShipments(in []Shipment) []Shipment {
	if in == nil {
		return nil
	}
	out := make([]Shipment, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
