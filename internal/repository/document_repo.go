package repository

import (
	"context"

	"bizledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DocumentListFilter narrows document listings; empty fields match everything.
type DocumentListFilter struct {
	Channel model.Channel
	Type    model.DocType
	Status  string
	OrderBy string // "", "issue_date" or "code"
	Page    int
	Limit   int
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	FindSuccessor(ctx context.Context, sourceID uuid.UUID) (*model.Document, error)
	CountReferences(ctx context.Context, id uuid.UUID) (int64, error)
	FindReturn(ctx context.Context, ids ...uuid.UUID) (*model.Document, error)
	List(ctx context.Context, filter DocumentListFilter) ([]model.Document, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdatePayment(ctx context.Context, id uuid.UUID, totalPaid decimal.Decimal, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func orderedLines(db *gorm.DB) *gorm.DB {
	return db.Order("position asc")
}

func (r *documentRepository) Create(ctx context.Context, doc *model.Document) error {
	return GetDB(ctx, r.db).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	if err := GetDB(ctx, r.db).Preload("Lines", orderedLines).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Document{}).Where("code = ?", code).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindSuccessor returns the document transformed from sourceID, or
// gorm.ErrRecordNotFound when the source has not been transformed.
func (r *documentRepository) FindSuccessor(ctx context.Context, sourceID uuid.UUID) (*model.Document, error) {
	var doc model.Document
	if err := GetDB(ctx, r.db).Where("source_id = ?", sourceID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// CountReferences counts documents pointing at id, either as a successor or as a return.
func (r *documentRepository) CountReferences(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Document{}).
		Where("source_id = ? OR return_of_id = ?", id, id).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindReturn returns a BR made against any of ids, or gorm.ErrRecordNotFound.
func (r *documentRepository) FindReturn(ctx context.Context, ids ...uuid.UUID) (*model.Document, error) {
	var doc model.Document
	if err := GetDB(ctx, r.db).Where("return_of_id IN ?", ids).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) List(ctx context.Context, filter DocumentListFilter) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Document{})
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch filter.OrderBy {
	case "issue_date":
		query = query.Order("issue_date asc").Order("seq asc")
	case "code":
		query = query.Order("code asc")
	default:
		query = query.Order("seq asc")
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Lines", orderedLines).Offset(offset).Limit(filter.Limit).Find(&docs).Error; err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

func (r *documentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error
}

func (r *documentRepository) UpdatePayment(ctx context.Context, id uuid.UUID, totalPaid decimal.Decimal, status string) error {
	return GetDB(ctx, r.db).Model(&model.Document{}).Where("id = ?", id).Updates(map[string]interface{}{
		"total_paid":     totalPaid,
		"payment_status": status,
	}).Error
}

// Delete hard-removes the document together with its lines and payments.
// Callers refuse documents that carry payments.
func (r *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("document_id = ?", id).Delete(&model.DocumentLine{}).Error; err != nil {
		return err
	}
	if err := db.Where("document_id = ?", id).Delete(&model.Payment{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Document{}).Error
}
