package domain

import "time"

type EventType string

const (
	EventCartUpdated         EventType = "cart.updated"
	EventOrderPlaced         EventType = "order.placed"
	EventSubOrderStatus      EventType = "suborder.status_changed"
	EventOrderCompleted      EventType = "order.completed"
	EventOrderForceCompleted EventType = "order.force_completed"
)

// Event is published on the in-process bus and serialized into the outbox.
type Event struct {
	Type       EventType      `json:"type"`
	OrderID    int64          `json:"orderId,omitempty"`
	SubOrderID int64          `json:"subOrderId,omitempty"`
	CustomerID int64          `json:"customerId,omitempty"`
	VendorID   int64          `json:"vendorId,omitempty"`
	Status     SubOrderStatus `json:"status,omitempty"`
	ItemCount  int            `json:"itemCount,omitempty"`
	Total      int64          `json:"total,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// Recipients lists the users a notification for this event is addressed to.
func (e Event) Recipients() []int64 {
	var ids []int64
	if e.CustomerID != 0 {
		ids = append(ids, e.CustomerID)
	}
	if e.VendorID != 0 && e.VendorID != e.CustomerID {
		ids = append(ids, e.VendorID)
	}
	return ids
}

type OutboxEvent struct {
	ID          int64      `json:"id"`
	AggregateID string     `json:"aggregateId"`
	EventType   string     `json:"eventType"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
}

// TimelineEntry is one archived order event.
type TimelineEntry struct {
	EventID    int64          `json:"eventId" bson:"event_id"`
	OrderID    int64          `json:"orderId" bson:"order_id"`
	SubOrderID int64          `json:"subOrderId,omitempty" bson:"sub_order_id,omitempty"`
	VendorID   int64          `json:"vendorId,omitempty" bson:"vendor_id,omitempty"`
	Type       EventType      `json:"type" bson:"type"`
	Status     SubOrderStatus `json:"status,omitempty" bson:"status,omitempty"`
	OccurredAt time.Time      `json:"occurredAt" bson:"occurred_at"`
	ArchivedAt time.Time      `json:"archivedAt" bson:"archived_at"`
}
