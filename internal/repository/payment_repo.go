package repository

import (
	"context"

	"bizledger/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *model.Payment) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.Payment, error)
	TotalByDocument(ctx context.Context, documentID uuid.UUID) (decimal.Decimal, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return GetDB(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]model.Payment, error) {
	var payments []model.Payment
	if err := GetDB(ctx, r.db).
		Where("document_id = ?", documentID).
		Order("paid_at asc").Order("created_at asc").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// TotalByDocument sums the payments in Go so that no precision is lost to
// the driver's numeric affinity.
func (r *paymentRepository) TotalByDocument(ctx context.Context, documentID uuid.UUID) (decimal.Decimal, error) {
	payments, err := r.ListByDocument(ctx, documentID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total, nil
}
