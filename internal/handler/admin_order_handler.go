package handler

import (
	"net/http"
	"time"

	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// /admin/orders 配下のAPI。認証 + 管理者ロール必須
type AdminOrderHandler struct {
	uc  *usecase.AdminOrderUsecase
	log *zap.Logger
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase, log *zap.Logger) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc, log: log}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, auth echo.MiddlewareFunc, adminGuard echo.MiddlewareFunc) {
	g := e.Group("/admin/orders", auth, adminGuard)
	g.GET("", h.list)
	g.PATCH("/:id/status", h.updateStatus)
	g.PATCH("/:id/payment", h.updatePayment)
}

type AdminUpdateOrderStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type AdminUpdatePaymentRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page, limit := parsePaging(c)

	f := repo.AdminOrderListFilter{
		Page:   page,
		Limit:  limit,
		Status: c.QueryParam("status"),
		UserID: parseOptionalInt64Query(c, "user_id"),
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
		}
		f.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
		}
		f.To = &t
	}

	out, err := h.uc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updateStatus(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	orderID, ok := parseInt64Param(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req AdminUpdateOrderStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdateStatus(c.Request().Context(), adminID, orderID, usecase.AdminUpdateOrderStatusInput{
		Status: req.Status,
		Note:   req.Note,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) updatePayment(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	orderID, ok := parseInt64Param(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req AdminUpdatePaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.UpdatePaymentStatus(c.Request().Context(), adminID, orderID, usecase.AdminUpdatePaymentInput{
		Status: req.Status,
		Note:   req.Note,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, out)
}
