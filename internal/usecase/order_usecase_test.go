package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type orderTestMocks struct {
	orders     *OrderRepoMock
	orderItems *OrderItemRepoMock
	carts      *CartRepoMock
	cartItems  *CartItemRepoMock
	inventory  *InventoryRepoMock
	products   *ProductRepoMock
	payments   *PaymentRepoMock
	auditLogs  *AuditLogRepoMock
}

func newOrderTestUsecase(pricing Pricing) (*OrderUsecase, orderTestMocks) {
	m := orderTestMocks{
		orders:     new(OrderRepoMock),
		orderItems: new(OrderItemRepoMock),
		carts:      new(CartRepoMock),
		cartItems:  new(CartItemRepoMock),
		inventory:  new(InventoryRepoMock),
		products:   new(ProductRepoMock),
		payments:   new(PaymentRepoMock),
		auditLogs:  new(AuditLogRepoMock),
	}
	tx := &TxManagerStub{Repos: &TxReposStub{
		orders:     m.orders,
		orderItems: m.orderItems,
		carts:      m.carts,
		cartItems:  m.cartItems,
		inventory:  m.inventory,
		products:   m.products,
		payments:   m.payments,
		auditLogs:  m.auditLogs,
	}}
	return NewOrderUsecase(tx, pricing, nil), m
}

func TestPlaceOrder_Success(t *testing.T) {
	pricing := Pricing{TaxRateBP: 1000, ShippingFee: 500, FreeShippingMin: 0}
	uc, m := newOrderTestUsecase(pricing)
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	cartItems := []model.CartItem{
		{ID: 1, CartID: 10, ProductID: 100, Quantity: 2, UnitPriceSnapshot: 1200},
	}
	product := model.Product{ID: 100, Name: "コーヒー豆", Price: 1200, Stock: 5, IsActive: true}

	m.orders.On("FindByIdempotencyKey", ctx, int64(1), "key-1").Return(model.Order{}, false, nil)
	m.carts.On("FindActiveByUserID", ctx, int64(1)).Return(cart, nil)
	m.cartItems.On("ListByCartID", ctx, int64(10)).Return(cartItems, nil)
	m.products.On("FindByID", ctx, int64(100)).Return(product, nil)
	m.inventory.On("DecreaseStockIfEnough", ctx, int64(100), int64(2)).Return(true, nil)

	// subtotal 2400、送料500、税240（10%切り捨て）、合計3140
	m.orders.On("Create", ctx, mock.MatchedBy(func(o model.Order) bool {
		return o.UserID == 1 &&
			o.Status == model.OrderStatusPending &&
			o.PaymentStatus == model.PaymentStatusUnpaid &&
			o.Subtotal == 2400 &&
			o.ShippingFee == 500 &&
			o.Tax == 240 &&
			o.Total == 3140 &&
			o.IdempotencyKey == "key-1" &&
			strings.HasPrefix(o.OrderNumber, "ORD-")
	})).Return(int64(77), nil)
	m.orderItems.On("CreateBulk", ctx, int64(77), mock.MatchedBy(func(items []model.OrderItem) bool {
		return len(items) == 1 &&
			items[0].ProductID == 100 &&
			items[0].ProductNameSnapshot == "コーヒー豆" &&
			items[0].UnitPriceSnapshot == 1200 &&
			items[0].Quantity == 2
	})).Return(nil)
	m.carts.On("UpdateStatus", ctx, int64(10), model.CartStatusCheckedOut).Return(nil)
	m.carts.On("Clear", ctx, int64(10)).Return(nil)

	out, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "key-1"})

	assert.NoError(t, err)
	assert.Equal(t, int64(77), out.ID)
	assert.Equal(t, string(model.OrderStatusPending), out.Status)
	assert.Equal(t, string(model.PaymentStatusUnpaid), out.PaymentStatus)
	assert.Equal(t, int64(3140), out.Total)
	assert.Len(t, out.Items, 1)
	m.orders.AssertExpectations(t)
	m.carts.AssertExpectations(t)
}

func TestPlaceOrder_FreeShippingOverThreshold(t *testing.T) {
	pricing := Pricing{TaxRateBP: 1000, ShippingFee: 500, FreeShippingMin: 2000}
	uc, m := newOrderTestUsecase(pricing)
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	cartItems := []model.CartItem{
		{ID: 1, CartID: 10, ProductID: 100, Quantity: 2, UnitPriceSnapshot: 1200},
	}
	product := model.Product{ID: 100, Name: "コーヒー豆", Price: 1200, Stock: 5, IsActive: true}

	m.orders.On("FindByIdempotencyKey", ctx, int64(1), "key-1").Return(model.Order{}, false, nil)
	m.carts.On("FindActiveByUserID", ctx, int64(1)).Return(cart, nil)
	m.cartItems.On("ListByCartID", ctx, int64(10)).Return(cartItems, nil)
	m.products.On("FindByID", ctx, int64(100)).Return(product, nil)
	m.inventory.On("DecreaseStockIfEnough", ctx, int64(100), int64(2)).Return(true, nil)

	m.orders.On("Create", ctx, mock.MatchedBy(func(o model.Order) bool {
		return o.ShippingFee == 0 && o.Total == 2640
	})).Return(int64(77), nil)
	m.orderItems.On("CreateBulk", ctx, int64(77), mock.Anything).Return(nil)
	m.carts.On("UpdateStatus", ctx, int64(10), model.CartStatusCheckedOut).Return(nil)
	m.carts.On("Clear", ctx, int64(10)).Return(nil)

	out, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "key-1"})

	assert.NoError(t, err)
	assert.Equal(t, int64(0), out.ShippingFee)
}

// 不足行があってもループを最後まで回し、不足商品を全部集めて409を返す。
// エラーでトランザクションごとロールバックされるので減算は残らない。
func TestPlaceOrder_InsufficientStockNamesAllShortProducts(t *testing.T) {
	pricing := Pricing{TaxRateBP: 1000, ShippingFee: 500}
	uc, m := newOrderTestUsecase(pricing)
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	cartItems := []model.CartItem{
		{ID: 1, CartID: 10, ProductID: 100, Quantity: 1, UnitPriceSnapshot: 1200},
		{ID: 2, CartID: 10, ProductID: 200, Quantity: 3, UnitPriceSnapshot: 800},
	}

	m.orders.On("FindByIdempotencyKey", ctx, int64(1), "key-1").Return(model.Order{}, false, nil)
	m.carts.On("FindActiveByUserID", ctx, int64(1)).Return(cart, nil)
	m.cartItems.On("ListByCartID", ctx, int64(10)).Return(cartItems, nil)
	m.products.On("FindByID", ctx, int64(100)).Return(model.Product{ID: 100, Name: "コーヒー豆", Stock: 5, IsActive: true}, nil)
	m.products.On("FindByID", ctx, int64(200)).Return(model.Product{ID: 200, Name: "ドリッパー", Stock: 1, IsActive: true}, nil)
	m.inventory.On("DecreaseStockIfEnough", ctx, int64(100), int64(1)).Return(true, nil)
	m.inventory.On("DecreaseStockIfEnough", ctx, int64(200), int64(3)).Return(false, nil)

	_, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "key-1"})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 409, httpErr.Status)
	assert.Equal(t, CodeInsufficientStock, httpErr.Code)
	assert.Equal(t, []string{"ドリッパー"}, httpErr.Products)
	m.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.carts.AssertNotCalled(t, "Clear", mock.Anything, mock.Anything)
}

// 同じキーの再送は既存注文をそのまま返す（二重注文しない）
func TestPlaceOrder_IdempotentReplayReturnsExistingOrder(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{TaxRateBP: 1000, ShippingFee: 500})
	ctx := context.Background()

	existing := model.Order{
		ID:            55,
		OrderNumber:   "ORD-20260831-ABCDEF01",
		UserID:        1,
		Status:        model.OrderStatusPending,
		PaymentStatus: model.PaymentStatusUnpaid,
		Total:         3140,
	}
	m.orders.On("FindByIdempotencyKey", ctx, int64(1), "key-1").Return(existing, true, nil)
	m.orderItems.On("ListByOrderID", ctx, int64(55)).Return([]model.OrderItem{}, nil)

	out, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "key-1"})

	assert.NoError(t, err)
	assert.Equal(t, int64(55), out.ID)
	assert.Equal(t, "ORD-20260831-ABCDEF01", out.OrderNumber)
	m.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.inventory.AssertNotCalled(t, "DecreaseStockIfEnough", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlaceOrder_RejectsEmptyIdempotencyKey(t *testing.T) {
	uc, _ := newOrderTestUsecase(Pricing{})

	_, err := uc.PlaceOrder(context.Background(), 1, PlaceOrderInput{IdempotencyKey: "  "})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 400, httpErr.Status)
}

func TestCancelMyOrder_RestoresStockAndRefundsWhenPaid(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{})
	ctx := context.Background()

	order := model.Order{
		ID:            55,
		UserID:        1,
		Status:        model.OrderStatusProcessing,
		PaymentStatus: model.PaymentStatusPaid,
		Total:         3140,
		PaymentMethod: "card",
		CreatedAt:     time.Now(),
	}
	items := []model.OrderItem{
		{ID: 1, OrderID: 55, ProductID: 100, Quantity: 2, UnitPriceSnapshot: 1200},
	}

	m.orders.On("FindByID", ctx, int64(55)).Return(order, nil)
	m.orderItems.On("ListByOrderID", ctx, int64(55)).Return(items, nil)
	m.inventory.On("IncreaseStock", ctx, int64(100), int64(2)).Return(nil)
	m.orders.On("UpdateStatus", ctx, int64(55), model.OrderStatusCancelled).Return(nil)
	m.orders.On("UpdatePaymentStatus", ctx, int64(55), model.PaymentStatusRefunded).Return(nil)
	m.payments.On("Create", ctx, mock.MatchedBy(func(p model.Payment) bool {
		return p.OrderID == 55 && p.Status == model.PaymentStatusRefunded && p.Amount == -3140
	})).Return(int64(1), nil)

	out, err := uc.CancelMyOrder(ctx, 1, 55)

	assert.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusCancelled), out.Status)
	assert.Equal(t, string(model.PaymentStatusRefunded), out.PaymentStatus)
	m.inventory.AssertExpectations(t)
	m.payments.AssertExpectations(t)
}

func TestCancelMyOrder_RejectedAfterShipment(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{})
	ctx := context.Background()

	order := model.Order{ID: 55, UserID: 1, Status: model.OrderStatusShipped}
	m.orders.On("FindByID", ctx, int64(55)).Return(order, nil)

	_, err := uc.CancelMyOrder(ctx, 1, 55)

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 409, httpErr.Status)
	assert.Equal(t, CodeInvalidTransition, httpErr.Code)
	m.inventory.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
	m.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

// 他人の注文は404（存在を教えない）
func TestCancelMyOrder_OthersOrderIsNotFound(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{})
	ctx := context.Background()

	order := model.Order{ID: 55, UserID: 2, Status: model.OrderStatusPending}
	m.orders.On("FindByID", ctx, int64(55)).Return(order, nil)

	_, err := uc.CancelMyOrder(ctx, 1, 55)

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 404, httpErr.Status)
}

func TestRequestReturn_AllowedOnlyWhenDelivered(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{})
	ctx := context.Background()

	order := model.Order{ID: 55, UserID: 1, Status: model.OrderStatusDelivered}
	m.orders.On("FindByID", ctx, int64(55)).Return(order, nil)
	m.orders.On("UpdateStatus", ctx, int64(55), model.OrderStatusReturnRequested).Return(nil)
	m.orderItems.On("ListByOrderID", ctx, int64(55)).Return([]model.OrderItem{}, nil)

	out, err := uc.RequestReturn(ctx, 1, 55)

	assert.NoError(t, err)
	assert.Equal(t, string(model.OrderStatusReturnRequested), out.Status)
}

func TestRequestReturn_RejectedBeforeDelivery(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{})
	ctx := context.Background()

	order := model.Order{ID: 55, UserID: 1, Status: model.OrderStatusShipped}
	m.orders.On("FindByID", ctx, int64(55)).Return(order, nil)

	_, err := uc.RequestReturn(ctx, 1, 55)

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 409, httpErr.Status)
	assert.Equal(t, CodeInvalidTransition, httpErr.Code)
}

func TestGetMyOrderDetail_OthersOrderIsNotFound(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{})
	ctx := context.Background()

	order := model.Order{ID: 55, UserID: 2, Status: model.OrderStatusPending}
	m.orders.On("FindByID", ctx, int64(55)).Return(order, nil)

	_, err := uc.GetMyOrderDetail(ctx, 1, 55)

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 404, httpErr.Status)
	m.orderItems.AssertNotCalled(t, "ListByOrderID", mock.Anything, mock.Anything)
}

func TestPricingQuote(t *testing.T) {
	tests := []struct {
		name         string
		pricing      Pricing
		subtotal     int64
		wantShipping int64
		wantTax      int64
		wantTotal    int64
	}{
		{"基本", Pricing{TaxRateBP: 1000, ShippingFee: 500}, 2400, 500, 240, 3140},
		{"税は切り捨て", Pricing{TaxRateBP: 1000, ShippingFee: 500}, 999, 500, 99, 1598},
		{"送料無料ライン到達", Pricing{TaxRateBP: 1000, ShippingFee: 500, FreeShippingMin: 2000}, 2000, 0, 200, 2200},
		{"送料無料ライン未満", Pricing{TaxRateBP: 1000, ShippingFee: 500, FreeShippingMin: 2000}, 1999, 500, 199, 2698},
		{"税率ゼロ", Pricing{TaxRateBP: 0, ShippingFee: 500}, 1000, 500, 0, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shipping, tax, total := tt.pricing.Quote(tt.subtotal)
			assert.Equal(t, tt.wantShipping, shipping)
			assert.Equal(t, tt.wantTax, tax)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestPlaceOrder_RejectsWhenNoActiveCart(t *testing.T) {
	uc, m := newOrderTestUsecase(Pricing{TaxRateBP: 1000, ShippingFee: 500})
	ctx := context.Background()

	m.orders.On("FindByIdempotencyKey", ctx, int64(1), "key-1").Return(model.Order{}, false, nil)
	m.carts.On("FindActiveByUserID", ctx, int64(1)).Return(model.Cart{}, repo.ErrNotFound)

	_, err := uc.PlaceOrder(ctx, 1, PlaceOrderInput{IdempotencyKey: "key-1"})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 400, httpErr.Status)
	assert.Equal(t, CodeValidation, httpErr.Code)
}
