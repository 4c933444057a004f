package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bizledger/internal/clock"
	"bizledger/internal/model"
	"bizledger/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DTOs
type DocumentLineRequest struct {
	ProductID   string           `json:"product_id" binding:"required,uuid"`
	Description string           `json:"description"`
	Quantity    int              `json:"quantity" binding:"required,gt=0"`
	UnitPrice   *decimal.Decimal `json:"unit_price" swaggertype:"string" example:"120.00"` // defaults to the product price
	Discount    decimal.Decimal  `json:"discount" swaggertype:"string" example:"0"`
}

type CreateDocumentRequest struct {
	Code        string                `json:"code"` // allocated when empty
	Type        string                `json:"type" binding:"required,oneof=DV BC BL BR FA"`
	Channel     string                `json:"channel" binding:"required,oneof=sales purchase internal"`
	IssueDate   *time.Time            `json:"issue_date"`
	DepotID     string                `json:"depot_id"`
	ClientID    string                `json:"client_id"`
	VendorName  string                `json:"vendor_name"`
	TaxIncluded *bool                 `json:"tax_included"`
	Accounting  string                `json:"accounting" binding:"omitempty,oneof=included excluded"`
	Note        string                `json:"note"`
	Lines       []DocumentLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type DocumentFilter struct {
	Channel string `form:"channel"`
	Type    string `form:"type"`
	Status  string `form:"status"`
	Order   string `form:"order"`
	Page    int    `form:"page"`
	Limit   int    `form:"limit"`
}

type DocumentLineResponse struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	ProductID   string `json:"product_id"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Discount    string `json:"discount"`
	Total       string `json:"total"` // tax-exclusive
}

type TotalsResponse struct {
	Exclusive string `json:"exclusive"`
	Tax       string `json:"tax"`
	Payable   string `json:"payable"`
}

type DocumentResponse struct {
	ID            string                 `json:"id"`
	Code          string                 `json:"code"`
	Type          string                 `json:"type"`
	Channel       string                 `json:"channel"`
	IssueDate     string                 `json:"issue_date"`
	Status        string                 `json:"status"`
	DepotID       string                 `json:"depot_id,omitempty"`
	ClientID      string                 `json:"client_id,omitempty"`
	VendorName    string                 `json:"vendor_name,omitempty"`
	SourceID      string                 `json:"source_id,omitempty"`
	ReturnOfID    string                 `json:"return_of_id,omitempty"`
	TaxIncluded   bool                   `json:"tax_included"`
	Accounting    string                 `json:"accounting"`
	TotalPaid     string                 `json:"total_paid"`
	PaymentStatus string                 `json:"payment_status,omitempty"`
	Note          string                 `json:"note,omitempty"`
	Lines         []DocumentLineResponse `json:"lines"`
	Totals        TotalsResponse         `json:"totals"`
}

type DocumentService interface {
	Create(ctx context.Context, actor string, req CreateDocumentRequest) (DocumentResponse, error)
	Get(ctx context.Context, id uuid.UUID) (DocumentResponse, error)
	List(ctx context.Context, filter DocumentFilter) ([]DocumentResponse, int64, error)
	Delete(ctx context.Context, actor string, id uuid.UUID) error
	Validate(ctx context.Context, actor string, id uuid.UUID) (DocumentResponse, error)
	Post(ctx context.Context, actor string, id uuid.UUID) (DocumentResponse, error)
	Totals(ctx context.Context, id uuid.UUID) (TotalsResponse, error)
}

type documentService struct {
	docRepo     repository.DocumentRepository
	clientRepo  repository.ClientRepository
	depotRepo   repository.DepotRepository
	productRepo repository.ProductRepository
	paymentRepo repository.PaymentRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	writer      documentWriter
	clock       clock.Clock
	events      EventPublisher
	log         *zap.Logger
}

func NewDocumentService(
	docRepo repository.DocumentRepository,
	clientRepo repository.ClientRepository,
	depotRepo repository.DepotRepository,
	productRepo repository.ProductRepository,
	counterRepo repository.CounterRepository,
	paymentRepo repository.PaymentRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	sequence SequenceService,
	clk clock.Clock,
	events EventPublisher,
	log *zap.Logger,
) DocumentService {
	return &documentService{
		docRepo:     docRepo,
		clientRepo:  clientRepo,
		depotRepo:   depotRepo,
		productRepo: productRepo,
		paymentRepo: paymentRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		writer:      documentWriter{docRepo: docRepo, counterRepo: counterRepo, sequence: sequence},
		clock:       clk,
		events:      events,
		log:         log.Named("document"),
	}
}

func (s *documentService) Create(ctx context.Context, actor string, req CreateDocumentRequest) (DocumentResponse, error) {
	channel := model.Channel(req.Channel)
	policy, ok := channel.Policy()
	if !ok {
		return DocumentResponse{}, invalid("channel", fmt.Sprintf("unknown channel %q", req.Channel))
	}
	docType := model.DocType(req.Type)
	if !docType.Valid() {
		return DocumentResponse{}, invalid("type", fmt.Sprintf("unknown document type %q", req.Type))
	}
	if len(req.Lines) == 0 {
		return DocumentResponse{}, invalid("lines", "at least one line is required")
	}

	doc := &model.Document{
		Code:        strings.TrimSpace(req.Code),
		Type:        docType,
		Channel:     channel,
		IssueDate:   today(s.clock),
		Status:      model.StatusDraft,
		VendorName:  strings.TrimSpace(req.VendorName),
		TaxIncluded: policy.DefaultTaxIncluded,
		Accounting:  model.AccountingNotApplicable,
		TotalPaid:   decimal.Zero,
		Note:        req.Note,
	}
	if req.IssueDate != nil {
		doc.IssueDate = *req.IssueDate
	}
	if req.TaxIncluded != nil {
		doc.TaxIncluded = *req.TaxIncluded
	}
	if doc.IsInvoice() {
		doc.Accounting = policy.DefaultAccounting
		if req.Accounting != "" {
			doc.Accounting = req.Accounting
		}
		doc.PaymentStatus = model.PaymentUnpaid
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.resolveCounterparty(txCtx, doc, req.ClientID); err != nil {
			return err
		}
		if err := s.resolveDepot(txCtx, doc, req.DepotID); err != nil {
			return err
		}
		if err := s.buildLines(txCtx, doc, req.Lines); err != nil {
			return err
		}
		if err := s.writer.insert(txCtx, doc); err != nil {
			return err
		}
		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateDocument, doc.ID.String(), doc.Code, req); err != nil {
			return err
		}
		publish(txCtx, s.events, EventDocumentCreated, toDocumentResponse(doc))
		return nil
	})
	if err != nil {
		return DocumentResponse{}, err
	}

	s.log.Info("document created", zap.String("code", doc.Code), zap.String("type", string(doc.Type)))
	return toDocumentResponse(doc), nil
}

func (s *documentService) resolveCounterparty(ctx context.Context, doc *model.Document, clientID string) error {
	if clientID != "" {
		id, err := uuid.Parse(clientID)
		if err != nil {
			return invalid("client_id", "invalid client id")
		}
		if _, err := s.clientRepo.FindByID(ctx, id); err != nil {
			return notFound("client", err)
		}
		doc.ClientID = &id
	}

	switch doc.Channel {
	case model.ChannelSales:
		if doc.ClientID == nil {
			return fmt.Errorf("%w: sales documents need a client", ErrCounterpartyRequired)
		}
	case model.ChannelPurchase:
		if doc.VendorName == "" {
			return fmt.Errorf("%w: purchase documents need a vendor name", ErrCounterpartyRequired)
		}
	}
	return nil
}

func (s *documentService) resolveDepot(ctx context.Context, doc *model.Document, depotID string) error {
	if depotID == "" {
		if doc.Type == model.DocTypeDelivery || doc.Type == model.DocTypeReturn {
			return fmt.Errorf("%w: %s documents move stock", ErrDepotRequired, doc.Type)
		}
		return nil
	}
	id, err := uuid.Parse(depotID)
	if err != nil {
		return invalid("depot_id", "invalid depot id")
	}
	if _, err := s.depotRepo.FindByID(ctx, id); err != nil {
		return notFound("depot", err)
	}
	doc.DepotID = &id
	return nil
}

func (s *documentService) buildLines(ctx context.Context, doc *model.Document, reqs []DocumentLineRequest) error {
	ids := make([]uuid.UUID, 0, len(reqs))
	for i, l := range reqs {
		id, err := uuid.Parse(l.ProductID)
		if err != nil {
			return invalid(fmt.Sprintf("lines[%d].product_id", i), "invalid product id")
		}
		ids = append(ids, id)
	}
	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}

	doc.Lines = make([]model.DocumentLine, 0, len(reqs))
	for i, l := range reqs {
		product, ok := products[ids[i]]
		if !ok {
			return fmt.Errorf("product %s %w", ids[i], ErrNotFound)
		}
		if l.Quantity <= 0 {
			return invalid(fmt.Sprintf("lines[%d].quantity", i), "must be greater than zero")
		}
		unitPrice := product.Price
		if l.UnitPrice != nil {
			unitPrice = *l.UnitPrice
		}
		if unitPrice.IsNegative() {
			return invalid(fmt.Sprintf("lines[%d].unit_price", i), "must not be negative")
		}
		if l.Discount.IsNegative() || l.Discount.GreaterThan(unitPrice) {
			return invalid(fmt.Sprintf("lines[%d].discount", i), "must be between zero and the unit price")
		}
		description := strings.TrimSpace(l.Description)
		if description == "" {
			description = product.Name
		}
		doc.Lines = append(doc.Lines, model.DocumentLine{
			Position:    i + 1,
			ProductID:   product.ID,
			Description: description,
			Quantity:    l.Quantity,
			UnitPrice:   unitPrice,
			Discount:    l.Discount,
		})
	}
	return nil
}

func (s *documentService) Get(ctx context.Context, id uuid.UUID) (DocumentResponse, error) {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return DocumentResponse{}, notFound("document", err)
	}
	return toDocumentResponse(doc), nil
}

func (s *documentService) List(ctx context.Context, filter DocumentFilter) ([]DocumentResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Channel != "" && !model.Channel(filter.Channel).Valid() {
		return nil, 0, invalid("channel", fmt.Sprintf("unknown channel %q", filter.Channel))
	}
	if filter.Type != "" && !model.DocType(filter.Type).Valid() {
		return nil, 0, invalid("type", fmt.Sprintf("unknown document type %q", filter.Type))
	}
	switch filter.Order {
	case "", "issue_date", "code":
	default:
		return nil, 0, invalid("order", "must be issue_date or code")
	}

	docs, total, err := s.docRepo.List(ctx, repository.DocumentListFilter{
		Channel: model.Channel(filter.Channel),
		Type:    model.DocType(filter.Type),
		Status:  filter.Status,
		OrderBy: filter.Order,
		Page:    filter.Page,
		Limit:   filter.Limit,
	})
	if err != nil {
		return nil, 0, err
	}

	res := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		res = append(res, toDocumentResponse(&docs[i]))
	}
	return res, total, nil
}

// Delete hard-removes a document no other document points at.
func (s *documentService) Delete(ctx context.Context, actor string, id uuid.UUID) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := s.docRepo.FindByID(txCtx, id)
		if err != nil {
			return notFound("document", err)
		}
		refs, err := s.docRepo.CountReferences(txCtx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("%w: %s", ErrDocumentReferenced, doc.Code)
		}
		paid, err := s.paymentRepo.TotalByDocument(txCtx, id)
		if err != nil {
			return err
		}
		if paid.IsPositive() {
			return fmt.Errorf("%w: %s has %s paid", ErrDocumentHasPayments, doc.Code, paid.StringFixed(2))
		}
		if err := s.docRepo.Delete(txCtx, id); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		if err := writeAudit(txCtx, s.auditRepo, actor, model.ActionDeleteDocument, doc.ID.String(), doc.Code, nil); err != nil {
			return err
		}
		publish(txCtx, s.events, EventDocumentDeleted, map[string]string{"id": doc.ID.String(), "code": doc.Code})
		return nil
	})
}

func (s *documentService) Validate(ctx context.Context, actor string, id uuid.UUID) (DocumentResponse, error) {
	return s.transition(ctx, actor, id, model.ActionValidateDocument, func(doc *model.Document) (string, error) {
		if doc.Status != model.StatusDraft {
			return "", fmt.Errorf("%w: %s is %s, not draft", ErrInvalidTransition, doc.Code, doc.Status)
		}
		return model.StatusValidated, nil
	})
}

// Post books an issued invoice into the accounts.
func (s *documentService) Post(ctx context.Context, actor string, id uuid.UUID) (DocumentResponse, error) {
	return s.transition(ctx, actor, id, model.ActionPostDocument, func(doc *model.Document) (string, error) {
		if !doc.IsInvoice() {
			return "", fmt.Errorf("%w: only invoices can be posted", ErrInvalidTransition)
		}
		if doc.Status != model.StatusInvoiced {
			return "", fmt.Errorf("%w: %s is %s, not invoiced", ErrInvalidTransition, doc.Code, doc.Status)
		}
		if doc.Accounting != model.AccountingIncluded {
			return "", fmt.Errorf("%w: %s is excluded from accounting", ErrInvalidTransition, doc.Code)
		}
		return model.StatusPosted, nil
	})
}

func (s *documentService) transition(ctx context.Context, actor string, id uuid.UUID, action string, next func(*model.Document) (string, error)) (DocumentResponse, error) {
	var doc *model.Document
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.FindByID(txCtx, id)
		if err != nil {
			return notFound("document", err)
		}
		status, err := next(doc)
		if err != nil {
			return err
		}
		if err := s.docRepo.UpdateStatus(txCtx, id, status); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		from := doc.Status
		doc.Status = status
		return writeAudit(txCtx, s.auditRepo, actor, action, doc.ID.String(), doc.Code, map[string]string{"from": from, "to": status})
	})
	if err != nil {
		return DocumentResponse{}, err
	}
	return toDocumentResponse(doc), nil
}

func (s *documentService) Totals(ctx context.Context, id uuid.UUID) (TotalsResponse, error) {
	doc, err := s.docRepo.FindByID(ctx, id)
	if err != nil {
		return TotalsResponse{}, notFound("document", err)
	}
	return toTotalsResponse(ComputeTotals(doc)), nil
}

// documentWriter inserts documents for both direct authoring and transformations.
type documentWriter struct {
	docRepo     repository.DocumentRepository
	counterRepo repository.CounterRepository
	sequence    SequenceService
}

// insert allocates a code when the document has none, rejects duplicates and
// stamps the insertion sequence. It must run inside a transaction.
func (w documentWriter) insert(ctx context.Context, doc *model.Document) error {
	if doc.Code == "" {
		code, err := w.sequence.NextForNow(ctx, doc.Channel, doc.Type)
		if err != nil {
			return err
		}
		doc.Code = code
	}
	exists, err := w.docRepo.CodeExists(ctx, doc.Code)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, doc.Code)
	}

	seq, err := w.counterRepo.Increment(ctx, documentSeqKey)
	if err != nil {
		return fmt.Errorf("failed to allocate document sequence: %w", err)
	}
	doc.Seq = seq

	if err := w.docRepo.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func today(clk clock.Clock) time.Time {
	now := clk.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func toTotalsResponse(t Totals) TotalsResponse {
	return TotalsResponse{
		Exclusive: t.Exclusive.StringFixed(2),
		Tax:       t.Tax.StringFixed(2),
		Payable:   t.Payable.StringFixed(2),
	}
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func toDocumentResponse(doc *model.Document) DocumentResponse {
	lines := make([]DocumentLineResponse, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		lines = append(lines, DocumentLineResponse{
			ID:          l.ID.String(),
			Position:    l.Position,
			ProductID:   l.ProductID.String(),
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice.StringFixed(2),
			Discount:    l.Discount.StringFixed(2),
			Total:       LineExclusiveTotal(l, doc.TaxIncluded).StringFixed(2),
		})
	}
	return DocumentResponse{
		ID:            doc.ID.String(),
		Code:          doc.Code,
		Type:          string(doc.Type),
		Channel:       string(doc.Channel),
		IssueDate:     doc.IssueDate.Format("2006-01-02"),
		Status:        doc.Status,
		DepotID:       uuidString(doc.DepotID),
		ClientID:      uuidString(doc.ClientID),
		VendorName:    doc.VendorName,
		SourceID:      uuidString(doc.SourceID),
		ReturnOfID:    uuidString(doc.ReturnOfID),
		TaxIncluded:   doc.TaxIncluded,
		Accounting:    doc.Accounting,
		TotalPaid:     doc.TotalPaid.StringFixed(2),
		PaymentStatus: doc.PaymentStatus,
		Note:          doc.Note,
		Lines:         lines,
		Totals:        toTotalsResponse(ComputeTotals(doc)),
	}
}
