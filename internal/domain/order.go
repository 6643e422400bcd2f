package domain

import (
	"strings"
	"time"
)

type SubOrderStatus string

const (
	StatusPlaced         SubOrderStatus = "PLACED"
	StatusAccepted       SubOrderStatus = "ACCEPTED"
	StatusPreparing      SubOrderStatus = "PREPARING"
	StatusReady          SubOrderStatus = "READY"
	StatusOutForDelivery SubOrderStatus = "OUT_FOR_DELIVERY"
	StatusDelivered      SubOrderStatus = "DELIVERED"
	StatusCancelled      SubOrderStatus = "CANCELLED"
)

// allowedNext is the complete vendor-facing transition table.
var allowedNext = map[SubOrderStatus][]SubOrderStatus{
	StatusPlaced:         {StatusAccepted, StatusCancelled},
	StatusAccepted:       {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReady, StatusCancelled},
	StatusReady:          {StatusOutForDelivery, StatusCancelled},
	StatusOutForDelivery: {StatusDelivered},
	StatusDelivered:      nil,
	StatusCancelled:      nil,
}

func ParseSubOrderStatus(s string) (SubOrderStatus, error) {
	st := SubOrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := allowedNext[st]; !ok {
		return "", ErrInvalidInput
	}
	return st, nil
}

func (s SubOrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s SubOrderStatus) AllowedNext() []SubOrderStatus {
	return append([]SubOrderStatus(nil), allowedNext[s]...)
}

func (s SubOrderStatus) CanTransitionTo(next SubOrderStatus) bool {
	for _, allowed := range allowedNext[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s SubOrderStatus) String() string {
	return string(s)
}

type AggregateStatus string

const (
	AggregateActive    AggregateStatus = "ACTIVE"
	AggregateCompleted AggregateStatus = "COMPLETED"
)

func ParseAggregateStatus(s string) (AggregateStatus, error) {
	st := AggregateStatus(strings.ToUpper(strings.TrimSpace(s)))
	if st != AggregateActive && st != AggregateCompleted {
		return "", ErrInvalidInput
	}
	return st, nil
}

// ProjectStatus derives the customer-facing status of an order from its sub-orders.
// An order with no sub-orders has nothing outstanding and projects to COMPLETED.
func ProjectStatus(statuses []SubOrderStatus) AggregateStatus {
	for _, s := range statuses {
		if !s.IsTerminal() {
			return AggregateActive
		}
	}
	return AggregateCompleted
}

type OrderItem struct {
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	SubOrderID      int64  `json:"subOrderId"`
	ProductID       int64  `json:"productId"`
	ProductName     string `json:"productName"`
	VendorID        int64  `json:"vendorId"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase int64  `json:"priceAtPurchase"`
}

func (i OrderItem) LineTotal() int64 {
	return i.PriceAtPurchase * int64(i.Quantity)
}

type VendorSubOrder struct {
	ID        int64          `json:"id"`
	OrderID   int64          `json:"orderId"`
	VendorID  int64          `json:"vendorId"`
	Items     []OrderItem    `json:"items"`
	Status    SubOrderStatus `json:"status"`
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type Order struct {
	ID             int64            `json:"id"`
	CustomerID     int64            `json:"customerId"`
	CreatedAt      time.Time        `json:"createdAt"`
	Items          []OrderItem      `json:"items"`
	Total          int64            `json:"total"`
	Status         AggregateStatus  `json:"status"`
	SubOrders      []VendorSubOrder `json:"subOrders"`
	IdempotencyKey string           `json:"-"`
}

// Project recomputes the aggregate status from the loaded sub-orders.
func (o *Order) Project() {
	statuses := make([]SubOrderStatus, len(o.SubOrders))
	for i, so := range o.SubOrders {
		statuses[i] = so.Status
	}
	o.Status = ProjectStatus(statuses)
}

func (o *Order) HasVendor(vendorID int64) bool {
	for _, so := range o.SubOrders {
		if so.VendorID == vendorID {
			return true
		}
	}
	return false
}

func SumItems(items []OrderItem) int64 {
	var total int64
	for _, it := range items {
		total += it.LineTotal()
	}
	return total
}
