package domain

import (
	"strings"
	"time"
)

// Product prices are integer minor currency units.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int64     `json:"price"`
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
	VendorID    int64     `json:"vendorId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" || p.Price < 0 || p.Stock < 0 || p.VendorID <= 0 {
		return ErrInvalidInput
	}
	return nil
}
