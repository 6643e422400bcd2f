package domain

import "time"

type CartItem struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customerId"`
	ProductID  int64     `json:"productId"`
	Quantity   int       `json:"quantity"`
	Price      int64     `json:"price"`
	AddedAt    time.Time `json:"addedAt"`
}

type Cart struct {
	CustomerID int64      `json:"customerId"`
	Items      []CartItem `json:"items"`
	Total      int64      `json:"total"`
	ItemCount  int        `json:"itemCount"`
}

// NewCart derives the total and item count from the given rows.
func NewCart(customerID int64, items []CartItem) *Cart {
	c := &Cart{CustomerID: customerID, Items: items}
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	for _, it := range c.Items {
		c.Total += it.Price * int64(it.Quantity)
		c.ItemCount += it.Quantity
	}
	return c
}
