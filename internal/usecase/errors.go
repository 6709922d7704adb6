package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーコード（レスポンスのcodeにそのまま出す）
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInternal          = "INTERNAL"
)

// 業務エラー。handlerがstatus/bodyに変換する。
// Products は在庫不足のときだけ、足りなかった商品名が入る。
type HTTPError struct {
	Status   int
	Code     string
	Message  string
	Products []string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func NewHTTPError(status int, code string, message string) error {
	return &HTTPError{
		Status:  status,
		Code:    code,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func newValidationError(message string) error {
	return NewHTTPError(http.StatusBadRequest, CodeValidation, message)
}

func newNotFound() error {
	return NewHTTPError(http.StatusNotFound, CodeNotFound, "not found")
}

func newUnauthorized() error {
	return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
}

func newForbidden() error {
	return NewHTTPError(http.StatusForbidden, CodeForbidden, "forbidden")
}

func newInvalidTransition(message string) error {
	return NewHTTPError(http.StatusConflict, CodeInvalidTransition, message)
}

// 足りなかった商品名を必ず入れる
func newInsufficientStock(products []string) error {
	return &HTTPError{
		Status:   http.StatusConflict,
		Code:     CodeInsufficientStock,
		Message:  "insufficient stock",
		Products: products,
	}
}

func newInternal() error {
	return NewHTTPError(http.StatusInternalServerError, CodeInternal, "db error")
}
