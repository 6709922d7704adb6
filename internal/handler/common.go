package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error    string   `json:"error"`
	Code     string   `json:"code,omitempty"`
	Products []string `json:"products,omitempty"`
}

// 業務エラーはstatus/code/messageに変換。
// それ以外は中身を漏らさず500、詳細はログだけに残す。
func writeError(c echo.Context, log *zap.Logger, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{
			Error:    he.Message,
			Code:     he.Code,
			Products: he.Products,
		})
	}

	if log != nil {
		log.Error("unexpected error",
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: usecase.CodeInternal})
}

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get("user_id")
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}

// ?page= ?limit= をデフォルト付きで読む
func parsePaging(c echo.Context) (int, int) {
	page := 1
	limit := 20

	if v := c.QueryParam("page"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			page = i
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			limit = i
		}
	}
	return page, limit
}

func parseInt64Param(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func parseOptionalInt64Query(c echo.Context, name string) *int64 {
	v := c.QueryParam(name)
	if v == "" {
		return nil
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &i
}
