package delivery

import (
	"net/http"
	"strings"

	authdelivery "smartshop-backend/internal/auth/delivery"
	"smartshop-backend/internal/price/usecase"
	"smartshop-backend/pkg/apperror"
	"smartshop-backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// PriceHandler serves the tracking REST API.
type PriceHandler struct {
	priceUsecase usecase.PriceUsecase
}

func NewPriceHandler(priceUsecase usecase.PriceUsecase) *PriceHandler {
	return &PriceHandler{priceUsecase: priceUsecase}
}

type trackRequest struct {
	ProductName string  `json:"product_name" binding:"required"`
	TargetPrice float64 `json:"target_price" binding:"required"`
}

// GetTracking lists the caller's active entries, newest first.
// GET /api/tracking
func (h *PriceHandler) GetTracking(c *gin.Context) {
	products, err := h.priceUsecase.ListTracking(c.Request.Context(), authdelivery.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// CreateTracking starts or re-targets an entry.
// POST /api/tracking
func (h *PriceHandler) CreateTracking(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product, err := h.priceUsecase.StartTracking(c.Request.Context(), authdelivery.UserID(c), req.ProductName, req.TargetPrice)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// DeleteTracking deactivates an entry; history is kept.
// DELETE /api/tracking/:name
func (h *PriceHandler) DeleteTracking(c *gin.Context) {
	product, err := h.priceUsecase.StopTracking(c.Request.Context(), authdelivery.UserID(c), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// QueryPrices returns the cheapest relevant listings without tracking.
// GET /api/prices?q=
func (h *PriceHandler) QueryPrices(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	listings, err := h.priceUsecase.QueryPrices(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "listings": listings})
}

func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		lg := logger.Component("price")
		lg.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": apperror.UserMessage(err)})
}
