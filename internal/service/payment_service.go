package service

import (
	"context"
	"fmt"
	"time"

	"bizledger/internal/clock"
	"bizledger/internal/metrics"
	"bizledger/internal/model"
	"bizledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DTOs
type RecordPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"150.00"`
	Method      string          `json:"method" binding:"required,oneof=cash check transfer card other"`
	PaidAt      *time.Time      `json:"paid_at"`
	CheckNumber string          `json:"check_number"`
	Note        string          `json:"note"`
}

type PaymentResponse struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Amount      string `json:"amount"`
	Method      string `json:"method"`
	PaidAt      string `json:"paid_at"`
	CheckNumber string `json:"check_number,omitempty"`
	Note        string `json:"note,omitempty"`
}

type PaymentSummary struct {
	DocumentID string `json:"document_id"`
	Payable    string `json:"payable"`
	Paid       string `json:"paid"`
	Remaining  string `json:"remaining"`
	Status     string `json:"status"`
}

type PaymentService interface {
	Record(ctx context.Context, actor string, invoiceID uuid.UUID, req RecordPaymentRequest) (PaymentResponse, error)
	List(ctx context.Context, invoiceID uuid.UUID) ([]PaymentResponse, error)
	Summary(ctx context.Context, invoiceID uuid.UUID) (PaymentSummary, error)
}

type paymentService struct {
	docRepo     repository.DocumentRepository
	paymentRepo repository.PaymentRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	clock       clock.Clock
	events      EventPublisher
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewPaymentService(
	docRepo repository.DocumentRepository,
	paymentRepo repository.PaymentRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	clk clock.Clock,
	events EventPublisher,
	m *metrics.Metrics,
	log *zap.Logger,
) PaymentService {
	return &paymentService{
		docRepo:     docRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		clock:       clk,
		events:      events,
		metrics:     m,
		log:         log.Named("payment"),
	}
}

// PaymentStatusFor derives the cached payment status of an invoice.
func PaymentStatusFor(paid, payable decimal.Decimal) string {
	switch {
	case paid.IsZero():
		return model.PaymentUnpaid
	case paid.GreaterThanOrEqual(payable):
		return model.PaymentPaid
	default:
		return model.PaymentPartial
	}
}

func (s *paymentService) Record(ctx context.Context, actor string, invoiceID uuid.UUID, req RecordPaymentRequest) (PaymentResponse, error) {
	if !model.ValidPaymentMethod(req.Method) {
		return PaymentResponse{}, invalid("method", fmt.Sprintf("unknown payment method %q", req.Method))
	}
	if !req.Amount.IsPositive() {
		return PaymentResponse{}, ErrInvalidPaymentAmount
	}
	if req.Method == model.MethodCheck && req.CheckNumber == "" {
		return PaymentResponse{}, ErrCheckNumberRequired
	}

	paidAt := s.clock.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	var payment model.Payment
	var doc *model.Document
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.FindByID(txCtx, invoiceID)
		if err != nil {
			return notFound("document", err)
		}
		if !doc.IsInvoice() {
			return fmt.Errorf("%w: %s is a %s", ErrNotAnInvoice, doc.Code, doc.Type)
		}

		payable := ComputeTotals(doc).Settlement()
		paid, err := s.paymentRepo.TotalByDocument(txCtx, doc.ID)
		if err != nil {
			return err
		}
		remaining := payable.Sub(paid)
		if req.Amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: remaining %s", ErrPaymentExceedsBalance, decimal.Max(remaining, decimal.Zero).StringFixed(2))
		}

		payment = model.Payment{
			DocumentID:  doc.ID,
			Amount:      req.Amount,
			Method:      req.Method,
			PaidAt:      paidAt,
			CheckNumber: req.CheckNumber,
			Note:        req.Note,
		}
		if err := s.paymentRepo.Create(txCtx, &payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		total, err := s.paymentRepo.TotalByDocument(txCtx, doc.ID)
		if err != nil {
			return err
		}
		status := PaymentStatusFor(total, payable)
		if err := s.docRepo.UpdatePayment(txCtx, doc.ID, total, status); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		doc.TotalPaid, doc.PaymentStatus = total, status

		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionRecordPayment, doc.ID.String(), doc.Code, req); err != nil {
			return err
		}
		publish(txCtx, s.events, EventPaymentRecorded, map[string]interface{}{
			"document_id":    doc.ID.String(),
			"code":           doc.Code,
			"amount":         payment.Amount.StringFixed(2),
			"total_paid":     total.StringFixed(2),
			"payment_status": status,
		})
		return nil
	})
	if err != nil {
		return PaymentResponse{}, err
	}

	s.metrics.IncPayment(payment.Method)
	s.log.Info("payment recorded",
		zap.String("document", doc.Code),
		zap.String("amount", payment.Amount.String()),
		zap.String("payment_status", doc.PaymentStatus),
	)
	return toPaymentResponse(payment), nil
}

func (s *paymentService) List(ctx context.Context, invoiceID uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.docRepo.FindByID(ctx, invoiceID); err != nil {
		return nil, notFound("document", err)
	}
	payments, err := s.paymentRepo.ListByDocument(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	res := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		res = append(res, toPaymentResponse(p))
	}
	return res, nil
}

func (s *paymentService) Summary(ctx context.Context, invoiceID uuid.UUID) (PaymentSummary, error) {
	doc, err := s.docRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return PaymentSummary{}, notFound("document", err)
	}
	if !doc.IsInvoice() {
		return PaymentSummary{}, ErrNotAnInvoice
	}
	payable := ComputeTotals(doc).Settlement()
	paid, err := s.paymentRepo.TotalByDocument(ctx, doc.ID)
	if err != nil {
		return PaymentSummary{}, err
	}
	return PaymentSummary{
		DocumentID: doc.ID.String(),
		Payable:    payable.StringFixed(2),
		Paid:       paid.StringFixed(2),
		Remaining:  decimal.Max(payable.Sub(paid), decimal.Zero).StringFixed(2),
		Status:     PaymentStatusFor(paid, payable),
	}, nil
}

func toPaymentResponse(p model.Payment) PaymentResponse {
	return PaymentResponse{
		ID:          p.ID.String(),
		DocumentID:  p.DocumentID.String(),
		Amount:      p.Amount.StringFixed(2),
		Method:      p.Method,
		PaidAt:      p.PaidAt.Format(time.RFC3339),
		CheckNumber: p.CheckNumber,
		Note:        p.Note,
	}
}
