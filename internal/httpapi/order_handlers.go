package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/Leganyst/dispatch-core/internal/model"
	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/service"
	"github.com/Leganyst/dispatch-core/internal/utils"
)

type createOrderRequest struct {
	Barcode          string          `json:"barcode"`
	RecipientName    string          `json:"recipient_name" binding:"required"`
	RecipientPhone   string          `json:"recipient_phone" binding:"required"`
	RecipientAddress string          `json:"recipient_address" binding:"required"`
	City             *string         `json:"city"`
	CODAmount        decimal.Decimal `json:"cod_amount"`
	DriverID         *uint           `json:"driver_id"`
	Notes            *string         `json:"notes"`
}

type updateOrderRequest struct {
	RecipientName    *string          `json:"recipient_name"`
	RecipientPhone   *string          `json:"recipient_phone"`
	RecipientAddress *string          `json:"recipient_address"`
	City             *string          `json:"city"`
	CODAmount        *decimal.Decimal `json:"cod_amount"`
	Notes            *string          `json:"notes"`
}

type assignRequest struct {
	DriverID uint `json:"driver_id" binding:"required"`
}

type statusRequest struct {
	Status model.OrderStatus `json:"status" binding:"required"`
}

// orderFilter reads the listing filters shared by the order endpoints.
func orderFilter(c *gin.Context) (repository.OrderFilter, bool) {
	f := repository.OrderFilter{Search: c.Query("search")}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := model.OrderStatus(strings.TrimSpace(s))
			if !status.Valid() {
				badRequest(c, "unknown status "+string(status))
				return f, false
			}
			f.Statuses = append(f.Statuses, status)
		}
	}
	if city := c.Query("city"); city != "" {
		f.City = &city
	}

	var ok bool
	if f.DriverID, ok = optionalUintQuery(c, "driver_id"); !ok {
		return f, false
	}
	unassigned, ok := optionalBoolQuery(c, "unassigned")
	if !ok {
		return f, false
	}
	f.DriverIsNull = unassigned != nil && *unassigned
	if f.OnSheet, ok = optionalBoolQuery(c, "on_sheet"); !ok {
		return f, false
	}
	from, ok := optionalTimeQuery(c, "created_from")
	if !ok {
		return f, false
	}
	to, ok := optionalTimeQuery(c, "created_to")
	if !ok {
		return f, false
	}
	if !from.IsZero() {
		f.CreatedFrom = &from
	}
	if !to.IsZero() {
		f.CreatedTo = &to
	}
	return f, true
}

func (h *Handler) listOrders(c *gin.Context) {
	f, ok := orderFilter(c)
	if !ok {
		return
	}
	page := pageQuery(c)
	items, total, err := h.orders.List(c.Request.Context(), f, page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewPage(items, total, page.Number, page.Size))
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) getOrderByBarcode(c *gin.Context) {
	o, err := h.orders.GetByBarcode(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	o, err := h.orders.Create(c.Request.Context(), service.CreateOrderInput{
		Barcode:          req.Barcode,
		RecipientName:    req.RecipientName,
		RecipientPhone:   req.RecipientPhone,
		RecipientAddress: req.RecipientAddress,
		City:             req.City,
		CODAmount:        req.CODAmount,
		DriverID:         req.DriverID,
		Notes:            req.Notes,
	}, principalFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *Handler) updateOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	o, err := h.orders.Update(c.Request.Context(), id, service.UpdateOrderInput{
		RecipientName:    req.RecipientName,
		RecipientPhone:   req.RecipientPhone,
		RecipientAddress: req.RecipientAddress,
		City:             req.City,
		CODAmount:        req.CODAmount,
		Notes:            req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) assignOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	o, err := h.orders.AssignDriver(c.Request.Context(), id, req.DriverID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) unassignOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	o, err := h.orders.UnassignDriver(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) deleteOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.orders.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
