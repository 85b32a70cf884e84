package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/service"
	"github.com/Leganyst/dispatch-core/internal/utils"
)

type createSheetRequest struct {
	DriverID uint     `json:"driver_id" binding:"required"`
	Barcodes []string `json:"barcodes" binding:"required"`
}

type barcodesRequest struct {
	Barcodes []string `json:"barcodes" binding:"required"`
}

func (h *Handler) listSheets(c *gin.Context) {
	var f repository.DelegateSheetFilter
	var ok bool
	if f.DriverID, ok = optionalUintQuery(c, "driver_id"); !ok {
		return
	}
	page := pageQuery(c)
	items, total, err := h.sheets.List(c.Request.Context(), f, page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewPage(items, total, page.Number, page.Size))
}

func (h *Handler) getSheet(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	s, err := h.sheets.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) getSheetByBarcode(c *gin.Context) {
	s, err := h.sheets.GetByBarcode(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) createSheet(c *gin.Context) {
	var req createSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s, err := h.sheets.Create(c.Request.Context(), service.CreateSheetInput{
		DriverID: req.DriverID,
		Barcodes: req.Barcodes,
	}, principalFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) addSheetOrders(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req barcodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	s, err := h.sheets.AddOrders(c.Request.Context(), id, req.Barcodes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) removeSheetOrder(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	orderID, ok := uintParam(c, "orderId")
	if !ok {
		return
	}
	s, err := h.sheets.RemoveOrder(c.Request.Context(), id, orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) reconcileSheet(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	rec, err := h.sheets.Reconcile(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteSheet(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.sheets.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reportSummary(c *gin.Context) {
	from, ok := optionalTimeQuery(c, "from")
	if !ok {
		return
	}
	to, ok := optionalTimeQuery(c, "to")
	if !ok {
		return
	}
	summary, err := h.reports.Summary(c.Request.Context(), from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
