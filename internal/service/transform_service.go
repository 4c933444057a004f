package service

import (
	"context"
	"errors"
	"fmt"

	"bizledger/internal/clock"
	"bizledger/internal/metrics"
	"bizledger/internal/model"
	"bizledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TransformService interface {
	Transform(ctx context.Context, actor string, sourceID uuid.UUID) (DocumentResponse, error)
	CreateReturn(ctx context.Context, actor string, sourceID uuid.UUID) (DocumentResponse, error)
}

type transformService struct {
	docRepo   repository.DocumentRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	writer    documentWriter
	stock     StockService
	clock     clock.Clock
	events    EventPublisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	// enforceStock rejects outgoing deliveries that would drive stock negative.
	enforceStock bool
}

func NewTransformService(
	docRepo repository.DocumentRepository,
	counterRepo repository.CounterRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	sequence SequenceService,
	stock StockService,
	clk clock.Clock,
	events EventPublisher,
	m *metrics.Metrics,
	log *zap.Logger,
	enforceStock bool,
) TransformService {
	return &transformService{
		docRepo:      docRepo,
		auditRepo:    auditRepo,
		txManager:    txManager,
		writer:       documentWriter{docRepo: docRepo, counterRepo: counterRepo, sequence: sequence},
		stock:        stock,
		clock:        clk,
		events:       events,
		metrics:      m,
		log:          log.Named("transform"),
		enforceStock: enforceStock,
	}
}

// Transform advances a document one step along DV -> BC -> BL -> FA. The new
// document, the source status change, the stock effect and the audit entry
// commit together or not at all.
func (s *transformService) Transform(ctx context.Context, actor string, sourceID uuid.UUID) (DocumentResponse, error) {
	var target *model.Document
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		source, err := s.docRepo.FindByID(txCtx, sourceID)
		if err != nil {
			return notFound("document", err)
		}

		successor, err := s.docRepo.FindSuccessor(txCtx, sourceID)
		if err == nil {
			return fmt.Errorf("%w: %s became %s", ErrAlreadyTransformed, source.Code, successor.Code)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		targetType, ok := source.Type.Next()
		if !ok {
			return fmt.Errorf("%w: %s", ErrTerminalType, source.Type)
		}
		if targetType == model.DocTypeDelivery && source.DepotID == nil {
			return fmt.Errorf("%w: %s has no depot to deliver from", ErrDepotRequired, source.Code)
		}

		status := model.StatusFor(targetType)
		target = s.derive(source, targetType, status)
		target.SourceID = &source.ID

		if err := s.writer.insert(txCtx, target); err != nil {
			return err
		}
		if err := s.docRepo.UpdateStatus(txCtx, source.ID, status); err != nil {
			return fmt.Errorf("failed to update source status: %w", err)
		}

		if targetType == model.DocTypeDelivery {
			policy, _ := target.Channel.Policy()
			if err := s.applyStock(txCtx, target, policy.DeliverySign, model.ReasonDelivery, s.enforceStock); err != nil {
				return err
			}
		}

		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionTransformDocument, target.ID.String(), target.Code, map[string]string{
			"source_id":   source.ID.String(),
			"source_code": source.Code,
			"target_type": string(targetType),
		}); err != nil {
			return err
		}
		publish(txCtx, s.events, EventDocumentTransformed, toDocumentResponse(target))
		return nil
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	s.metrics.IncTransformation(string(target.Channel), string(target.Type))
	s.log.Info("document transformed",
		zap.String("source_id", sourceID.String()),
		zap.String("code", target.Code),
		zap.String("type", string(target.Type)),
	)
	return toDocumentResponse(target), nil
}

// CreateReturn spawns a BR next to a delivery or invoice. It is not blocked by
// the source having been transformed, and reverses the delivery stock effect.
// A shipment is returned at most once, whether through its BL or its FA.
func (s *transformService) CreateReturn(ctx context.Context, actor string, sourceID uuid.UUID) (DocumentResponse, error) {
	var ret *model.Document
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		source, err := s.docRepo.FindByID(txCtx, sourceID)
		if err != nil {
			return notFound("document", err)
		}
		if !source.Type.Returnable() {
			return fmt.Errorf("%w: %s is a %s", ErrReturnNotAllowed, source.Code, source.Type)
		}
		if source.DepotID == nil {
			return fmt.Errorf("%w: %s has no depot to return to", ErrDepotRequired, source.Code)
		}

		shipment, err := s.shipmentOf(txCtx, source)
		if err != nil {
			return err
		}
		prior, err := s.docRepo.FindReturn(txCtx, shipment...)
		if err == nil {
			return fmt.Errorf("%w: %s already returned by %s", ErrAlreadyReturned, source.Code, prior.Code)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ret = s.derive(source, model.DocTypeReturn, model.StatusValidated)
		ret.ReturnOfID = &source.ID

		if err := s.writer.insert(txCtx, ret); err != nil {
			return err
		}

		policy, _ := ret.Channel.Policy()
		if err := s.applyStock(txCtx, ret, -policy.DeliverySign, model.ReasonReturn, false); err != nil {
			return err
		}

		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateReturn, ret.ID.String(), ret.Code, map[string]string{
			"return_of_id":   source.ID.String(),
			"return_of_code": source.Code,
		}); err != nil {
			return err
		}
		publish(txCtx, s.events, EventDocumentReturned, toDocumentResponse(ret))
		return nil
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	s.metrics.IncReturn(string(ret.Channel))
	s.log.Info("return created", zap.String("source_id", sourceID.String()), zap.String("code", ret.Code))
	return toDocumentResponse(ret), nil
}

// shipmentOf lists the documents describing one physical shipment: a
// delivery note and the invoice issued from it.
func (s *transformService) shipmentOf(ctx context.Context, doc *model.Document) ([]uuid.UUID, error) {
	ids := []uuid.UUID{doc.ID}
	switch doc.Type {
	case model.DocTypeInvoice:
		if doc.SourceID != nil {
			ids = append(ids, *doc.SourceID)
		}
	case model.DocTypeDelivery:
		invoice, err := s.docRepo.FindSuccessor(ctx, doc.ID)
		if err == nil {
			ids = append(ids, invoice.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return ids, nil
}

// derive copies counterparty, depot, flags and lines onto a new document of
// type t. Invoices start unpaid with accounting resolved from the channel.
func (s *transformService) derive(source *model.Document, t model.DocType, status string) *model.Document {
	doc := &model.Document{
		Type:        t,
		Channel:     source.Channel,
		IssueDate:   today(s.clock),
		Status:      status,
		DepotID:     source.DepotID,
		ClientID:    source.ClientID,
		VendorName:  source.VendorName,
		TaxIncluded: source.TaxIncluded,
		Accounting:  model.AccountingNotApplicable,
		TotalPaid:   decimal.Zero,
		Note:        source.Note,
	}
	if doc.IsInvoice() {
		doc.Accounting = source.Accounting
		if doc.Accounting == "" || doc.Accounting == model.AccountingNotApplicable {
			policy, _ := doc.Channel.Policy()
			doc.Accounting = policy.DefaultAccounting
		}
		doc.PaymentStatus = model.PaymentUnpaid
	}

	doc.Lines = make([]model.DocumentLine, 0, len(source.Lines))
	for _, l := range source.Lines {
		doc.Lines = append(doc.Lines, model.DocumentLine{
			Position:    l.Position,
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Discount:    l.Discount,
		})
	}
	return doc
}

// applyStock issues one adjustment per line, quantity times sign.
func (s *transformService) applyStock(ctx context.Context, doc *model.Document, sign int, reason string, validate bool) error {
	for _, l := range doc.Lines {
		if _, err := s.stock.Adjust(ctx, StockAdjustment{
			DepotID:    *doc.DepotID,
			ProductID:  l.ProductID,
			Delta:      sign * l.Quantity,
			Reason:     reason,
			DocumentID: &doc.ID,
			Validate:   validate,
		}); err != nil {
			return err
		}
	}
	return nil
}
