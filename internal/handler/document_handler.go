package handler

import (
	"net/http"

	"bizledger/internal/middleware"
	"bizledger/internal/service"
	"bizledger/pkg/pagination"
	"bizledger/pkg/response"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documentService  service.DocumentService
	transformService service.TransformService
}

func NewDocumentHandler(documentService service.DocumentService, transformService service.TransformService) *DocumentHandler {
	return &DocumentHandler{
		documentService:  documentService,
		transformService: transformService,
	}
}

func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup, authz *middleware.Authorizer) {
	docs := router.Group("/api/documents")
	{
		docs.POST("", authz.Require(middleware.ObjectDocument, middleware.ActionCreate), h.CreateDocument)
		docs.GET("", authz.Require(middleware.ObjectDocument, middleware.ActionView), h.ListDocuments)
		docs.GET("/:id", authz.Require(middleware.ObjectDocument, middleware.ActionView), h.GetDocument)
		docs.GET("/:id/totals", authz.Require(middleware.ObjectDocument, middleware.ActionView), h.GetTotals)
		docs.DELETE("/:id", authz.Require(middleware.ObjectDocument, middleware.ActionDelete), h.DeleteDocument)
		docs.POST("/:id/validate", authz.Require(middleware.ObjectDocument, middleware.ActionUpdate), h.ValidateDocument)
		docs.POST("/:id/post", authz.Require(middleware.ObjectDocument, middleware.ActionUpdate), h.PostDocument)
		docs.POST("/:id/transform", authz.Require(middleware.ObjectDocument, middleware.ActionCreate), h.TransformDocument)
		docs.POST("/:id/return", authz.Require(middleware.ObjectDocument, middleware.ActionCreate), h.CreateReturn)
	}
}

// CreateDocument creates a quote, order, delivery, return or invoice
// @Summary      Create document
// @Description  Creates a document. The code is allocated from the channel/type/year sequence when omitted. Delivery notes and returns move stock.
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateDocumentRequest  true  "Create Document Payload"
// @Success      201      {object}  response.Response{data=service.DocumentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/documents [post]
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req service.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	doc, err := h.documentService.Create(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// ListDocuments returns a paginated list of documents
// @Summary      List documents
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        channel  query     string  false  "sales, purchase or internal"
// @Param        type     query     string  false  "DV, BC, BL, BR or FA"
// @Param        status   query     string  false  "draft, validated, ordered, delivered, invoiced or posted"
// @Param        order    query     string  false  "issue_date or code (default creation order)"
// @Param        page     query     int     false  "Page number (default 1)"
// @Param        limit    query     int     false  "Number of items per page (default 20)"
// @Success      200      {object}  response.Response{data=object}
// @Failure      500      {object}  response.Response
// @Router       /api/documents [get]
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var filter service.DocumentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, "Invalid query: "+err.Error())
		return
	}
	p := pagination.Parse(c)
	filter.Page, filter.Limit = p.Page, p.Limit

	docs, total, err := h.documentService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap("documents", docs, total)))
}

// GetDocument returns one document with its lines and totals
// @Summary      Get document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.DocumentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// GetTotals returns the tax-exclusive, tax and payable amounts
// @Summary      Document totals
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.TotalsResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/documents/{id}/totals [get]
func (h *DocumentHandler) GetTotals(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	totals, err := h.documentService.Totals(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, totals))
}

// DeleteDocument deletes a document nothing references
// @Summary      Delete document
// @Description  Deletes a document. Documents with a successor, a return or recorded payments are refused. Stock already moved is not reversed.
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/documents/{id} [delete]
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.documentService.Delete(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Document deleted successfully"}))
}

// ValidateDocument moves a draft to validated
// @Summary      Validate document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.DocumentResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/documents/{id}/validate [post]
func (h *DocumentHandler) ValidateDocument(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	doc, err := h.documentService.Validate(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// PostDocument posts an invoiced invoice that is included in accounting
// @Summary      Post document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  response.Response{data=service.DocumentResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/documents/{id}/post [post]
func (h *DocumentHandler) PostDocument(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	doc, err := h.documentService.Post(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// TransformDocument derives the next document in the DV, BC, BL, FA chain
// @Summary      Transform document
// @Description  Creates the successor document. A source can be transformed once; invoices are terminal.
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Source document ID"
// @Success      201  {object}  response.Response{data=service.DocumentResponse}
// @Failure      409  {object}  response.Response
// @Failure      422  {object}  response.Response
// @Router       /api/documents/{id}/transform [post]
func (h *DocumentHandler) TransformDocument(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	doc, err := h.transformService.Transform(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// CreateReturn creates a return note against a delivery or invoice
// @Summary      Create return
// @Description  A delivery and the invoice issued from it are returned at most once between them.
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Delivery note or invoice ID"
// @Success      201  {object}  response.Response{data=service.DocumentResponse}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/documents/{id}/return [post]
func (h *DocumentHandler) CreateReturn(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	doc, err := h.transformService.CreateReturn(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}
