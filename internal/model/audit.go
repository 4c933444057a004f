package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateDocument    = "CREATE_DOCUMENT"
	ActionValidateDocument  = "VALIDATE_DOCUMENT"
	ActionPostDocument      = "POST_DOCUMENT"
	ActionDeleteDocument    = "DELETE_DOCUMENT"
	ActionTransformDocument = "TRANSFORM_DOCUMENT"
	ActionCreateReturn      = "CREATE_RETURN"
	ActionRecordPayment     = "RECORD_PAYMENT"
	ActionAdjustStock       = "ADJUST_STOCK"
	ActionTransferStock     = "TRANSFER_STOCK"
	ActionRemoveStock       = "REMOVE_STOCK"
	ActionCreateClient      = "CREATE_CLIENT"
	ActionCreateDepot       = "CREATE_DEPOT"
	ActionCreateProduct     = "CREATE_PRODUCT"
	ActionImportSnapshot    = "IMPORT_SNAPSHOT"
)

// AuditLog tracks Who, What, and When for critical ledger changes
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Actor      string    `gorm:"type:varchar(100);index" json:"actor"` // empty for system actions
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string    `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable code/name
	Details    string    `gorm:"type:text" json:"details"`                       // Serialized JSON payload of the action
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
