package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Document is a commercial record (quote, order, delivery, return, invoice).
// SourceID is the chain back-reference: at most one document may point at a
// given source, which is what makes a transformation happen at most once.
type Document struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Code          string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"code"`
	Type          DocType         `gorm:"type:varchar(2);not null;index" json:"type"`
	Channel       Channel         `gorm:"type:varchar(20);not null;index" json:"channel"`
	IssueDate     time.Time       `gorm:"not null;index" json:"issue_date"`
	Status        string          `gorm:"type:varchar(20);not null;default:'draft'" json:"status"`
	DepotID       *uuid.UUID      `gorm:"type:uuid;index" json:"depot_id"`
	ClientID      *uuid.UUID      `gorm:"type:uuid;index" json:"client_id"`
	VendorName    string          `gorm:"type:varchar(255)" json:"vendor_name"`
	SourceID      *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"source_id"`
	ReturnOfID    *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"return_of_id"`
	TaxIncluded   bool            `gorm:"not null" json:"tax_included"`
	Accounting    string          `gorm:"type:varchar(20);not null" json:"accounting"`
	TotalPaid     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_paid"`
	PaymentStatus string          `gorm:"type:varchar(20)" json:"payment_status"`
	Note          string          `gorm:"type:text" json:"note"`
	Lines         []DocumentLine  `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"lines"`
	Seq           int64           `gorm:"not null;index" json:"seq"`             // insertion order
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DocumentLine is one article line. Description is a snapshot taken when the
// line is created; it does not follow later product renames.
type DocumentLine struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	Position    int             `gorm:"not null" json:"position"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Description string          `gorm:"type:text" json:"description"`
	Quantity    int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"` // tax-inclusive
	Discount    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"discount"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

func (l *DocumentLine) BeforeCreate(tx *gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// IsInvoice reports whether payments may be recorded against the document.
func (d *Document) IsInvoice() bool {
	return d.Type == DocTypeInvoice
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
