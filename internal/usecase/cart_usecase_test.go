package usecase

import (
	"context"
	"testing"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newCartTestUsecase(policy string) (*CartUsecase, *CartRepoMock, *CartItemRepoMock, *ProductRepoMock) {
	cartRepo := new(CartRepoMock)
	itemRepo := new(CartItemRepoMock)
	productRepo := new(ProductRepoMock)
	uc := NewCartUsecase(cartRepo, itemRepo, productRepo, policy)
	return uc, cartRepo, itemRepo, productRepo
}

func TestAddToCart_SumsQuantityForSameProduct(t *testing.T) {
	uc, cartRepo, itemRepo, productRepo := newCartTestUsecase("sum")
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	product := model.Product{ID: 100, Name: "コーヒー豆", Price: 1200, Stock: 5, IsActive: true}

	cartRepo.On("GetOrCreateActiveByUserID", ctx, int64(1)).Return(cart, nil)
	productRepo.On("FindByID", ctx, int64(100)).Return(product, nil)

	// 既存1個 + 追加2個 = 3個（在庫5でOK）
	existing := []model.CartItem{{ID: 1, CartID: 10, ProductID: 100, Quantity: 1, UnitPriceSnapshot: 1200}}
	itemRepo.On("ListByCartID", ctx, int64(10)).Return(existing, nil).Once()
	itemRepo.On("UpsertByCartAndProduct", ctx, int64(10), int64(100), int64(2), int64(1200)).Return(nil)

	after := []model.CartItem{{ID: 1, CartID: 10, ProductID: 100, Quantity: 3, UnitPriceSnapshot: 1200}}
	itemRepo.On("ListByCartID", ctx, int64(10)).Return(after, nil).Once()

	out, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: 100, Quantity: 2})

	assert.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, int64(3), out.Items[0].Quantity)
	assert.Equal(t, int64(3600), out.Total)
	itemRepo.AssertExpectations(t)
}

func TestAddToCart_RejectsWhenExceedsStock(t *testing.T) {
	uc, cartRepo, itemRepo, productRepo := newCartTestUsecase("sum")
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	product := model.Product{ID: 100, Name: "コーヒー豆", Price: 1200, Stock: 3, IsActive: true}

	cartRepo.On("GetOrCreateActiveByUserID", ctx, int64(1)).Return(cart, nil)
	productRepo.On("FindByID", ctx, int64(100)).Return(product, nil)

	// 既存2個 + 追加2個 = 4個 > 在庫3
	existing := []model.CartItem{{ID: 1, CartID: 10, ProductID: 100, Quantity: 2, UnitPriceSnapshot: 1200}}
	itemRepo.On("ListByCartID", ctx, int64(10)).Return(existing, nil)

	_, err := uc.AddToCart(ctx, 1, AddCartInput{ProductID: 100, Quantity: 2})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 409, httpErr.Status)
	assert.Equal(t, CodeInsufficientStock, httpErr.Code)
	assert.Equal(t, []string{"コーヒー豆"}, httpErr.Products)
	itemRepo.AssertNotCalled(t, "UpsertByCartAndProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddToCart_RejectsInvalidQuantity(t *testing.T) {
	uc, _, _, _ := newCartTestUsecase("sum")

	_, err := uc.AddToCart(context.Background(), 1, AddCartInput{ProductID: 100, Quantity: 0})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 400, httpErr.Status)
	assert.Equal(t, CodeValidation, httpErr.Code)
}

func TestUpdateCartItem_RejectsWhenExceedsStock(t *testing.T) {
	uc, _, itemRepo, productRepo := newCartTestUsecase("sum")
	ctx := context.Background()

	item := model.CartItem{ID: 5, CartID: 10, ProductID: 100, Quantity: 1, UnitPriceSnapshot: 1200}
	product := model.Product{ID: 100, Name: "コーヒー豆", Price: 1200, Stock: 2, IsActive: true}

	itemRepo.On("IsOwnedByUser", ctx, int64(5), int64(1)).Return(true, nil)
	itemRepo.On("FindByID", ctx, int64(5)).Return(item, nil)
	productRepo.On("FindByID", ctx, int64(100)).Return(product, nil)

	_, err := uc.UpdateCartItem(ctx, 1, 5, UpdateCartItemInput{Quantity: 3})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 409, httpErr.Status)
	assert.Equal(t, CodeInsufficientStock, httpErr.Code)
	itemRepo.AssertNotCalled(t, "UpdateQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateCartItem_RejectsZeroQuantity(t *testing.T) {
	uc, _, _, _ := newCartTestUsecase("sum")

	_, err := uc.UpdateCartItem(context.Background(), 1, 5, UpdateCartItemInput{Quantity: 0})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 400, httpErr.Status)
}

func TestUpdateCartItem_NotOwnedIsNotFound(t *testing.T) {
	uc, _, itemRepo, _ := newCartTestUsecase("sum")
	ctx := context.Background()

	itemRepo.On("IsOwnedByUser", ctx, int64(5), int64(1)).Return(false, nil)

	_, err := uc.UpdateCartItem(ctx, 1, 5, UpdateCartItemInput{Quantity: 2})

	httpErr, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, 404, httpErr.Status)
}

// 削除は冪等。2回目（もう存在しない明細）でも成功で今のカートが返る。
func TestDeleteCartItem_IdempotentOnMissingItem(t *testing.T) {
	uc, cartRepo, itemRepo, _ := newCartTestUsecase("sum")
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	cartRepo.On("GetOrCreateActiveByUserID", ctx, int64(1)).Return(cart, nil)
	itemRepo.On("IsOwnedByUser", ctx, int64(99), int64(1)).Return(false, nil)
	itemRepo.On("ListByCartID", ctx, int64(10)).Return([]model.CartItem{}, nil)

	out, err := uc.DeleteCartItem(ctx, 1, 99)

	assert.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, int64(0), out.Total)
	itemRepo.AssertNotCalled(t, "DeleteByID", mock.Anything, mock.Anything)
}

func TestClearCart_IdempotentOnEmptyCart(t *testing.T) {
	uc, cartRepo, itemRepo, _ := newCartTestUsecase("sum")
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	cartRepo.On("GetOrCreateActiveByUserID", ctx, int64(1)).Return(cart, nil)
	cartRepo.On("Clear", ctx, int64(10)).Return(nil)
	itemRepo.On("ListByCartID", ctx, int64(10)).Return([]model.CartItem{}, nil)

	out, err := uc.ClearCart(ctx, 1)

	assert.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, int64(0), out.Total)
}

func TestMergeCart_SumPolicyClampsToStock(t *testing.T) {
	uc, cartRepo, itemRepo, productRepo := newCartTestUsecase("sum")
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	product := model.Product{ID: 100, Name: "コーヒー豆", Price: 1200, Stock: 4, IsActive: true}

	cartRepo.On("GetOrCreateActiveByUserID", ctx, int64(1)).Return(cart, nil)
	productRepo.On("FindByID", ctx, int64(100)).Return(product, nil)

	// サーバー3個 + ローカル3個 = 6個だが、在庫4で頭打ち
	server := []model.CartItem{{ID: 1, CartID: 10, ProductID: 100, Quantity: 3, UnitPriceSnapshot: 1200}}
	itemRepo.On("ListByCartID", ctx, int64(10)).Return(server, nil).Once()
	itemRepo.On("SetQuantityByCartAndProduct", ctx, int64(10), int64(100), int64(4), int64(1200)).Return(nil)

	after := []model.CartItem{{ID: 1, CartID: 10, ProductID: 100, Quantity: 4, UnitPriceSnapshot: 1200}}
	itemRepo.On("ListByCartID", ctx, int64(10)).Return(after, nil).Once()

	out, err := uc.MergeCart(ctx, 1, []MergeCartItem{{ProductID: 100, Quantity: 3}})

	assert.NoError(t, err)
	assert.Equal(t, int64(4), out.Items[0].Quantity)
	itemRepo.AssertExpectations(t)
}

func TestMergeCart_ReplacePolicyUsesLocalQuantity(t *testing.T) {
	uc, cartRepo, itemRepo, productRepo := newCartTestUsecase("replace")
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	product := model.Product{ID: 100, Name: "コーヒー豆", Price: 1200, Stock: 10, IsActive: true}

	cartRepo.On("GetOrCreateActiveByUserID", ctx, int64(1)).Return(cart, nil)
	productRepo.On("FindByID", ctx, int64(100)).Return(product, nil)

	// サーバー3個だがreplaceなのでローカル2個になる
	server := []model.CartItem{{ID: 1, CartID: 10, ProductID: 100, Quantity: 3, UnitPriceSnapshot: 1200}}
	itemRepo.On("ListByCartID", ctx, int64(10)).Return(server, nil).Once()
	itemRepo.On("SetQuantityByCartAndProduct", ctx, int64(10), int64(100), int64(2), int64(1200)).Return(nil)

	after := []model.CartItem{{ID: 1, CartID: 10, ProductID: 100, Quantity: 2, UnitPriceSnapshot: 1200}}
	itemRepo.On("ListByCartID", ctx, int64(10)).Return(after, nil).Once()

	out, err := uc.MergeCart(ctx, 1, []MergeCartItem{{ProductID: 100, Quantity: 2}})

	assert.NoError(t, err)
	assert.Equal(t, int64(2), out.Items[0].Quantity)
}

func TestMergeCart_SkipsMissingAndInactiveProducts(t *testing.T) {
	uc, cartRepo, itemRepo, productRepo := newCartTestUsecase("sum")
	ctx := context.Background()

	cart := model.Cart{ID: 10, UserID: 1, Status: model.CartStatusActive}
	cartRepo.On("GetOrCreateActiveByUserID", ctx, int64(1)).Return(cart, nil)

	productRepo.On("FindByID", ctx, int64(100)).Return(model.Product{}, repo.ErrNotFound)
	productRepo.On("FindByID", ctx, int64(200)).Return(model.Product{ID: 200, Name: "旧商品", Price: 500, Stock: 5, IsActive: false}, nil)

	itemRepo.On("ListByCartID", ctx, int64(10)).Return([]model.CartItem{}, nil)

	out, err := uc.MergeCart(ctx, 1, []MergeCartItem{
		{ProductID: 100, Quantity: 1},
		{ProductID: 200, Quantity: 1},
	})

	assert.NoError(t, err)
	assert.Empty(t, out.Items)
	itemRepo.AssertNotCalled(t, "SetQuantityByCartAndProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
