package handler

import (
	"net/http"

	"bizledger/internal/middleware"
	"bizledger/internal/service"
	"bizledger/pkg/pagination"
	"bizledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup, authz *middleware.Authorizer) {
	view := authz.Require(middleware.ObjectCatalog, middleware.ActionView)
	create := authz.Require(middleware.ObjectCatalog, middleware.ActionCreate)

	router.POST("/api/clients", create, h.CreateClient)
	router.GET("/api/clients", view, h.ListClients)
	router.POST("/api/depots", create, h.CreateDepot)
	router.GET("/api/depots", view, h.ListDepots)
	router.POST("/api/products", create, h.CreateProduct)
	router.GET("/api/products", view, h.ListProducts)
}

// CreateClient registers a client with the next CL code
// @Summary      Create client
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateClientRequest  true  "Client Payload"
// @Success      201      {object}  response.Response{data=model.Client}
// @Failure      400      {object}  response.Response
// @Router       /api/clients [post]
func (h *CatalogHandler) CreateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	client, err := h.catalogService.CreateClient(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// ListClients
// @Summary      List clients
// @Tags         catalog
// @Security     BearerAuth
// @Produce      json
// @Param        search  query     string  false  "Search by name or code"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Router       /api/clients [get]
func (h *CatalogHandler) ListClients(c *gin.Context) {
	p := pagination.Parse(c)
	clients, total, err := h.catalogService.ListClients(c.Request.Context(), p.Page, p.Limit, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap("clients", clients, total)))
}

// CreateDepot
// @Summary      Create depot
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDepotRequest  true  "Depot Payload"
// @Success      201      {object}  response.Response{data=model.Depot}
// @Failure      400      {object}  response.Response
// @Router       /api/depots [post]
func (h *CatalogHandler) CreateDepot(c *gin.Context) {
	var req service.CreateDepotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	depot, err := h.catalogService.CreateDepot(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, depot))
}

// ListDepots
// @Summary      List depots
// @Tags         catalog
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.Depot}
// @Router       /api/depots [get]
func (h *CatalogHandler) ListDepots(c *gin.Context) {
	depots, err := h.catalogService.ListDepots(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, depots))
}

// CreateProduct
// @Summary      Create product
// @Tags         catalog
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateProductRequest  true  "Product Payload"
// @Success      201      {object}  response.Response{data=service.ProductResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/products [post]
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	product, err := h.catalogService.CreateProduct(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, product))
}

// ListProducts
// @Summary      List products
// @Tags         catalog
// @Security     BearerAuth
// @Produce      json
// @Param        search  query     string  false  "Search by SKU or name"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Router       /api/products [get]
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	p := pagination.Parse(c)
	products, total, err := h.catalogService.ListProducts(c.Request.Context(), p.Page, p.Limit, c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap("products", products, total)))
}
