package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockEntry is the on-hand quantity of one product in one depot.
// Quantity may go negative; callers that care check availability first.
type StockEntry struct {
	DepotID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"depot_id"`
	ProductID uuid.UUID `gorm:"type:uuid;primaryKey" json:"product_id"`
	Quantity  int       `gorm:"type:int;not null;default:0" json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Movement direction constants
const (
	MovementIn  = "IN"
	MovementOut = "OUT"
)

// Movement reasons
const (
	ReasonManual   = "MANUAL"
	ReasonTransfer = "TRANSFER"
	ReasonDelivery = "DELIVERY"
	ReasonReturn   = "RETURN"
)

// StockMovement journals every signed adjustment applied to a StockEntry.
type StockMovement struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	DepotID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"depot_id"`
	ProductID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"product_id"`
	DocumentID      *uuid.UUID `gorm:"type:uuid;index" json:"document_id"` // nil for manual adjustments
	Direction       string     `gorm:"type:varchar(10);not null" json:"direction"`
	Reason          string     `gorm:"type:varchar(20);not null" json:"reason"`
	QuantityChanged int        `gorm:"type:int;not null" json:"quantity_changed"`
	QuantityAfter   int        `gorm:"type:int;not null" json:"quantity_after"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (m *StockMovement) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
