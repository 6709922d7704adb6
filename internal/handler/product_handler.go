package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// /products, /categories, /brands の公開API
type ProductHandler struct {
	uc  *usecase.CatalogUsecase
	log *zap.Logger
}

// DI
func NewProductHandler(uc *usecase.CatalogUsecase, log *zap.Logger) *ProductHandler {
	return &ProductHandler{uc: uc, log: log}
}

func (h *ProductHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/products", h.list)
	e.GET("/products/:id", h.detail)
	e.GET("/categories", h.categories)
	e.GET("/brands", h.brands)
}

func (h *ProductHandler) list(c echo.Context) error {
	page, limit := parsePaging(c)

	in := usecase.ListProductsInput{
		Page:       page,
		Limit:      limit,
		Q:          c.QueryParam("q"),
		Sort:       c.QueryParam("sort"),
		CategoryID: parseOptionalInt64Query(c, "category_id"),
		BrandID:    parseOptionalInt64Query(c, "brand_id"),
		MinPrice:   parseOptionalInt64Query(c, "min_price"),
		MaxPrice:   parseOptionalInt64Query(c, "max_price"),
	}

	out, err := h.uc.ListPublicProducts(c.Request().Context(), in)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) detail(c echo.Context) error {
	id, ok := parseInt64Param(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetPublicProduct(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) categories(c echo.Context) error {
	out, err := h.uc.ListCategories(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProductHandler) brands(c echo.Context) error {
	out, err := h.uc.ListBrands(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}
