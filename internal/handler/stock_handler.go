package handler

import (
	"net/http"

	"bizledger/internal/middleware"
	"bizledger/internal/service"
	"bizledger/pkg/pagination"
	"bizledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type StockHandler struct {
	stockService service.StockService
}

func NewStockHandler(stockService service.StockService) *StockHandler {
	return &StockHandler{stockService: stockService}
}

func (h *StockHandler) RegisterRoutes(router *gin.RouterGroup, authz *middleware.Authorizer) {
	stock := router.Group("/api/stock")
	{
		stock.GET("", authz.Require(middleware.ObjectStock, middleware.ActionView), h.ListStock)
		stock.GET("/:depot_id/:product_id", authz.Require(middleware.ObjectStock, middleware.ActionView), h.GetStock)
		stock.POST("/adjust", authz.Require(middleware.ObjectStock, middleware.ActionUpdate), h.AdjustStock)
		stock.POST("/transfer", authz.Require(middleware.ObjectStock, middleware.ActionUpdate), h.TransferStock)
		stock.DELETE("/:depot_id/:product_id", authz.Require(middleware.ObjectStock, middleware.ActionDelete), h.RemoveStock)
	}
}

// ListStock returns on-hand quantities
// @Summary      List stock
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        depot_id  query     string  false  "Filter by depot"
// @Param        page      query     int     false  "Page number (default 1)"
// @Param        limit     query     int     false  "Number of items per page (default 20)"
// @Success      200       {object}  response.Response{data=object}
// @Router       /api/stock [get]
func (h *StockHandler) ListStock(c *gin.Context) {
	var depotID *uuid.UUID
	if raw := c.Query("depot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "Invalid depot_id: "+raw)
			return
		}
		depotID = &id
	}
	p := pagination.Parse(c)

	entries, total, err := h.stockService.List(c.Request.Context(), depotID, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap("stock", entries, total)))
}

// GetStock returns the quantity of a product in a depot and its movement journal
// @Summary      Get stock entry
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        depot_id    path      string  true   "Depot ID"
// @Param        product_id  path      string  true   "Product ID"
// @Param        page        query     int     false  "Movement page (default 1)"
// @Param        limit       query     int     false  "Movements per page (default 20)"
// @Success      200         {object}  response.Response{data=object}
// @Router       /api/stock/{depot_id}/{product_id} [get]
func (h *StockHandler) GetStock(c *gin.Context) {
	depotID, ok := pathUUID(c, "depot_id")
	if !ok {
		return
	}
	productID, ok := pathUUID(c, "product_id")
	if !ok {
		return
	}
	p := pagination.Parse(c)
	ctx := c.Request.Context()

	qty, err := h.stockService.QuantityOf(ctx, depotID, productID)
	if err != nil {
		respondError(c, err)
		return
	}
	movements, total, err := h.stockService.Movements(ctx, depotID, productID, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"depot_id":        depotID.String(),
		"product_id":      productID.String(),
		"quantity":        qty,
		"movements":       movements,
		"movements_total": total,
	}))
}

// AdjustStock applies a manual signed adjustment
// @Summary      Adjust stock
// @Tags         stock
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.AdjustStockRequest  true  "Adjustment Payload"
// @Success      200      {object}  response.Response{data=service.StockEntryResponse}
// @Failure      422      {object}  response.Response
// @Router       /api/stock/adjust [post]
func (h *StockHandler) AdjustStock(c *gin.Context) {
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	entry, err := h.stockService.AdjustManual(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, entry))
}

// TransferStock moves quantity between depots
// @Summary      Transfer stock
// @Tags         stock
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.TransferStockRequest  true  "Transfer Payload"
// @Success      200      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/stock/transfer [post]
func (h *StockHandler) TransferStock(c *gin.Context) {
	var req service.TransferStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	if err := h.stockService.Transfer(c.Request.Context(), middleware.Actor(c), req); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Stock transferred successfully"}))
}

// RemoveStock deletes a stock entry
// @Summary      Remove stock entry
// @Tags         stock
// @Security     BearerAuth
// @Produce      json
// @Param        depot_id    path      string  true  "Depot ID"
// @Param        product_id  path      string  true  "Product ID"
// @Success      200         {object}  response.Response
// @Failure      404         {object}  response.Response
// @Router       /api/stock/{depot_id}/{product_id} [delete]
func (h *StockHandler) RemoveStock(c *gin.Context) {
	depotID, ok := pathUUID(c, "depot_id")
	if !ok {
		return
	}
	productID, ok := pathUUID(c, "product_id")
	if !ok {
		return
	}

	if err := h.stockService.Remove(c.Request.Context(), middleware.Actor(c), depotID, productID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Stock entry removed"}))
}
