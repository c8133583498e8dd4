package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventProductCreated = "product.created"
	EventProductUpdated = "product.updated"
	EventProductDeleted = "product.deleted"
)

// ProductEvent is published after every successful write to a product.
type ProductEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	ProductID  uint      `json:"product_id"`
	Product    *Product  `json:"product,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewProductEvent builds an event of the given type. product may be nil for deletions.
func NewProductEvent(eventType string, productID uint, product *Product) ProductEvent {
	return ProductEvent{
		EventID:    uuid.New().String(),
		Type:       eventType,
		ProductID:  productID,
		Product:    product,
		OccurredAt: time.Now().UTC(),
	}
}
