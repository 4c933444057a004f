package service

import (
	"context"
	"fmt"
	"strings"

	"bizledger/internal/model"
	"bizledger/internal/repository"

	"github.com/shopspring/decimal"
)

// DTOs
type CreateClientRequest struct {
	Name    string `json:"name" binding:"required"`
	TaxCode string `json:"tax_code"`
	Phone   string `json:"phone"`
	Email   string `json:"email" binding:"omitempty,email"`
	Address string `json:"address"`
}

type CreateDepotRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
}

type CreateProductRequest struct {
	SKU   string          `json:"sku" binding:"required"`
	Name  string          `json:"name" binding:"required"`
	Price decimal.Decimal `json:"price" swaggertype:"string" example:"120.00"` // tax-inclusive
}

type ProductResponse struct {
	ID    string `json:"id"`
	SKU   string `json:"sku"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

type CatalogService interface {
	CreateClient(ctx context.Context, actor string, req CreateClientRequest) (model.Client, error)
	ListClients(ctx context.Context, page, limit int, search string) ([]model.Client, int64, error)
	CreateDepot(ctx context.Context, actor string, req CreateDepotRequest) (model.Depot, error)
	ListDepots(ctx context.Context) ([]model.Depot, error)
	CreateProduct(ctx context.Context, actor string, req CreateProductRequest) (ProductResponse, error)
	ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error)
}

type catalogService struct {
	clientRepo  repository.ClientRepository
	depotRepo   repository.DepotRepository
	productRepo repository.ProductRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
	sequence    SequenceService
}

func NewCatalogService(
	clientRepo repository.ClientRepository,
	depotRepo repository.DepotRepository,
	productRepo repository.ProductRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	sequence SequenceService,
) CatalogService {
	return &catalogService{
		clientRepo:  clientRepo,
		depotRepo:   depotRepo,
		productRepo: productRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
		sequence:    sequence,
	}
}

func (s *catalogService) CreateClient(ctx context.Context, actor string, req CreateClientRequest) (model.Client, error) {
	if strings.TrimSpace(req.Name) == "" {
		return model.Client{}, invalid("name", "is required")
	}
	client := model.Client{
		Name:    strings.TrimSpace(req.Name),
		TaxCode: req.TaxCode,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		code, err := s.sequence.NextClientCode(txCtx)
		if err != nil {
			return err
		}
		client.Code = code
		if err := s.clientRepo.Create(txCtx, &client); err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateClient, client.ID.String(), client.Code, req)
	})
	if err != nil {
		return model.Client{}, err
	}
	return client, nil
}

func (s *catalogService) ListClients(ctx context.Context, page, limit int, search string) ([]model.Client, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.clientRepo.List(ctx, page, limit, search)
}

func (s *catalogService) CreateDepot(ctx context.Context, actor string, req CreateDepotRequest) (model.Depot, error) {
	if strings.TrimSpace(req.Name) == "" {
		return model.Depot{}, invalid("name", "is required")
	}
	depot := model.Depot{Name: strings.TrimSpace(req.Name), Location: req.Location}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.depotRepo.Create(txCtx, &depot); err != nil {
			return fmt.Errorf("failed to create depot: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateDepot, depot.ID.String(), depot.Name, req)
	})
	if err != nil {
		return model.Depot{}, err
	}
	return depot, nil
}

func (s *catalogService) ListDepots(ctx context.Context) ([]model.Depot, error) {
	return s.depotRepo.List(ctx)
}

func (s *catalogService) CreateProduct(ctx context.Context, actor string, req CreateProductRequest) (ProductResponse, error) {
	if req.Price.IsNegative() {
		return ProductResponse{}, invalid("price", "must not be negative")
	}
	product := model.Product{
		SKU:   strings.TrimSpace(req.SKU),
		Name:  strings.TrimSpace(req.Name),
		Price: req.Price,
	}
	if product.SKU == "" || product.Name == "" {
		return ProductResponse{}, invalid("sku", "sku and name are required")
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.productRepo.FindBySKU(txCtx, product.SKU); err == nil {
			return invalid("sku", fmt.Sprintf("%s already exists", product.SKU))
		}
		if err := s.productRepo.Create(txCtx, &product); err != nil {
			return fmt.Errorf("failed to create product: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionCreateProduct, product.ID.String(), product.Name, req)
	})
	if err != nil {
		return ProductResponse{}, err
	}
	return toProductResponse(product), nil
}

func (s *catalogService) ListProducts(ctx context.Context, page, limit int, search string) ([]ProductResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	products, total, err := s.productRepo.List(ctx, page, limit, search)
	if err != nil {
		return nil, 0, err
	}

	res := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		res = append(res, toProductResponse(p))
	}
	return res, total, nil
}

func toProductResponse(p model.Product) ProductResponse {
	return ProductResponse{
		ID:    p.ID.String(),
		SKU:   p.SKU,
		Name:  p.Name,
		Price: p.Price.StringFixed(2),
	}
}
