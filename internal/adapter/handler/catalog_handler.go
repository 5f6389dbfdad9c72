package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/marketplace/internal/adapter/handler/middleware"
	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
)

type CatalogHandler struct {
	catalog *service.CatalogService
}

func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

type approvalReq struct {
	Status domain.ApprovalStatus `json:"status" binding:"required"`
}

func (h *CatalogHandler) ListPublic(c *gin.Context) {
	products, err := h.catalog.ListPublic(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *CatalogHandler) CreateListing(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req service.ListingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad_request")
		return
	}

	product, err := h.catalog.CreateListing(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *CatalogHandler) ListBySeller(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	products, err := h.catalog.ListBySeller(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *CatalogHandler) ListPending(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	products, err := h.catalog.ListPending(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *CatalogHandler) SetApproval(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)

	var req approvalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status required")
		return
	}

	product, err := h.catalog.SetApproval(c.Request.Context(), p, c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}
