package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentMethod enum constants
const (
	MethodCash     = "cash"
	MethodCheck    = "check"
	MethodTransfer = "transfer"
	MethodCard     = "card"
	MethodOther    = "other"
)

// ValidPaymentMethod reports whether m is one of the accepted methods.
func ValidPaymentMethod(m string) bool {
	switch m {
	case MethodCash, MethodCheck, MethodTransfer, MethodCard, MethodOther:
		return true
	}
	return false
}

// Payment is a settlement against one invoice. Payments are append-only.
type Payment struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	Method      string          `gorm:"type:varchar(20);not null" json:"method"`
	PaidAt      time.Time       `gorm:"not null" json:"paid_at"`
	CheckNumber string          `gorm:"type:varchar(50)" json:"check_number,omitempty"`
	Note        string          `gorm:"type:text" json:"note,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
