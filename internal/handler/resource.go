package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/maxviazov/storegate/internal/model"
	"github.com/maxviazov/storegate/internal/repository"
	"github.com/maxviazov/storegate/internal/service"
	"github.com/maxviazov/storegate/pkg/response"
)

type ResourceHandler struct {
	svc service.ResourceService
}

func NewResourceHandler(svc service.ResourceService) *ResourceHandler {
	return &ResourceHandler{svc: svc}
}

func (h *ResourceHandler) Register(r *gin.RouterGroup) {
	r.GET("/stores", h.stores)

	g := r.Group("/stores/:store/resources")
	{
		g.POST("", h.create)
		g.GET("", h.list)
		g.GET("/:id", h.get)
		g.PUT("/:id", h.update)
		g.DELETE("/:id", h.delete)
	}
}

func (h *ResourceHandler) stores(c *gin.Context) {
	response.WriteData(c, http.StatusOK, gin.H{"stores": h.svc.Backends()})
}

func (h *ResourceHandler) create(c *gin.Context) {
	var req model.CreateResourceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.WriteError(c, service.ErrInvalidInput) // parse details stay server-side
		return
	}
	res, err := h.svc.Create(c.Request.Context(), c.Param("store"), req)
	if err != nil {
		response.WriteError(c, err)
		return
	}
	c.Header("Location", c.Request.URL.Path+"/"+res.ID)
	response.WriteData(c, http.StatusCreated, res)
}

func (h *ResourceHandler) get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("store"), c.Param("id"))
	if err != nil {
		response.WriteError(c, err)
		return
	}
	response.WriteData(c, http.StatusOK, res)
}

func (h *ResourceHandler) update(c *gin.Context) {
	var req model.UpdateResourceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.WriteError(c, service.ErrInvalidInput)
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("store"), c.Param("id"), req)
	if err != nil {
		response.WriteError(c, err)
		return
	}
	response.WriteData(c, http.StatusOK, res)
}

func (h *ResourceHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("store"), c.Param("id")); err != nil {
		response.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// list reads ?page= and ?size=. Garbage is treated as absent; the paging
// calculator clamps whatever remains.
func (h *ResourceHandler) list(c *gin.Context) {
	index, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	res, err := h.svc.List(c.Request.Context(), c.Param("store"), repository.PageRequest{Index: index, Size: size})
	if err != nil {
		response.WriteError(c, err)
		return
	}
	response.WriteData(c, http.StatusOK, res)
}
