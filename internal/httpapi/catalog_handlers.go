package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/dispatch-core/internal/repository"
	"github.com/Leganyst/dispatch-core/internal/service"
	"github.com/Leganyst/dispatch-core/internal/utils"
)

type cityRequest struct {
	Name string `json:"name" binding:"required"`
}

type driverRequest struct {
	Name          string   `json:"name" binding:"required"`
	IDNumber      *string  `json:"id_number"`
	Phone         string   `json:"phone" binding:"required"`
	AssignedAreas []string `json:"assigned_areas"`
}

type driverPatchRequest struct {
	Name          *string   `json:"name"`
	IDNumber      *string   `json:"id_number"`
	Phone         *string   `json:"phone"`
	AssignedAreas *[]string `json:"assigned_areas"`
}

func (h *Handler) listCities(c *gin.Context) {
	cities, err := h.cities.List(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cities)
}

func (h *Handler) createCity(c *gin.Context) {
	var req cityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	city, err := h.cities.Create(c.Request.Context(), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, city)
}

func (h *Handler) renameCity(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req cityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	city, err := h.cities.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, city)
}

func (h *Handler) deleteCity(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.cities.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listDrivers pages through drivers; ?city= switches to the coverage lookup.
func (h *Handler) listDrivers(c *gin.Context) {
	ctx := c.Request.Context()
	if city := c.Query("city"); city != "" {
		drivers, err := h.drivers.ListForCity(ctx, city)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, drivers)
		return
	}

	page := pageQuery(c)
	items, total, err := h.drivers.List(ctx, repository.DriverFilter{Search: c.Query("search")}, page)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.NewPage(items, total, page.Number, page.Size))
}

func (h *Handler) getDriver(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	d, err := h.drivers.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) createDriver(c *gin.Context) {
	var req driverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.drivers.Create(c.Request.Context(), service.DriverInput{
		Name:          req.Name,
		IDNumber:      req.IDNumber,
		Phone:         req.Phone,
		AssignedAreas: req.AssignedAreas,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) updateDriver(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req driverPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	d, err := h.drivers.Update(c.Request.Context(), id, service.DriverPatch{
		Name:          req.Name,
		IDNumber:      req.IDNumber,
		Phone:         req.Phone,
		AssignedAreas: req.AssignedAreas,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) deleteDriver(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.drivers.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
