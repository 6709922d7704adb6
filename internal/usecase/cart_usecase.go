package usecase

import (
	"context"

	repo "storefront/internal/repository"
)

// CartUsecase は /cart の業務ロジック。
// カートは在庫を引き当てない（soft reservation）。在庫の確定チェックは注文作成時。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
	mergePolicy  string
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
	mergePolicy string,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
		mergePolicy:  mergePolicy,
	}
}

// price は unit_price_snapshot（追加時点の価格）を返す。
type CartItemResponse struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total int64              `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// ログイン時にクライアント側カートから持ち込む1行
type MergeCartItem struct {
	ProductID int64
	Quantity  int64
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, newUnauthorized()
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart はカートに追加（同一商品は数量加算、在庫が上限）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, newUnauthorized()
	}
	if in.ProductID <= 0 {
		return CartResponse{}, newValidationError("invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, newValidationError("invalid quantity")
	}

	// ACTIVEカート取得（無ければ作成）
	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	// 商品チェック（公開のみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if err == repo.ErrNotFound {
		return CartResponse{}, newValidationError("invalid product")
	}
	if err != nil {
		return CartResponse{}, newInternal()
	}
	if !p.IsActive {
		return CartResponse{}, newValidationError("invalid product")
	}

	// 既存数量＋追加分が在庫を越えないか。
	// ここの在庫チェックはゆるい事前チェックで、確定は注文作成時にやり直す。
	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	var existingQty int64 = 0
	for _, it := range items {
		if it.ProductID == in.ProductID {
			existingQty = it.Quantity
			break
		}
	}

	newQty := existingQty + in.Quantity
	if newQty > p.Stock {
		return CartResponse{}, newInsufficientStock([]string{p.Name})
	}

	// Upsert（同一商品は加算）。unit_price_snapshot は追加時点の価格。
	if err := u.cartItemRepo.UpsertByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity, p.Price); err != nil {
		return CartResponse{}, newInternal()
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更（所有チェック＋在庫チェック）。0は拒否（削除はDELETEで）。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, newUnauthorized()
	}
	if cartItemID <= 0 {
		return CartResponse{}, newValidationError("invalid id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, newValidationError("invalid quantity")
	}

	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}
	if !owned {
		return CartResponse{}, newNotFound()
	}

	item, err := u.cartItemRepo.FindByID(ctx, cartItemID)
	if err == repo.ErrNotFound {
		return CartResponse{}, newNotFound()
	}
	if err != nil {
		return CartResponse{}, newInternal()
	}

	//商品の在庫チェック
	p, err := u.productRepo.FindByID(ctx, item.ProductID)
	if err == repo.ErrNotFound {
		return CartResponse{}, newValidationError("invalid product")
	}
	if err != nil {
		return CartResponse{}, newInternal()
	}
	if !p.IsActive {
		return CartResponse{}, newValidationError("invalid product")
	}
	if in.Quantity > p.Stock {
		return CartResponse{}, newInsufficientStock([]string{p.Name})
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, cartItemID, in.Quantity); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, newNotFound()
		}
		return CartResponse{}, newInternal()
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// 明細削除。冪等：他人の明細や存在しない明細はno-op成功で今のカートを返す。
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, newUnauthorized()
	}
	if cartItemID <= 0 {
		return CartResponse{}, newValidationError("invalid id")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}
	if !owned {
		//無い明細の削除は成功扱い
		return u.buildCartResponse(ctx, cart.ID)
	}

	if err := u.cartItemRepo.DeleteByID(ctx, cartItemID); err != nil && err != repo.ErrNotFound {
		return CartResponse{}, newInternal()
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// カートを空にする。冪等：元々空でも成功。
func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, newUnauthorized()
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	if err := u.cartRepo.Clear(ctx, cart.ID); err != nil {
		return CartResponse{}, newInternal()
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// MergeCart はログイン時にクライアント側カートをサーバーカートへ取り込む。
// ポリシーは設定で切り替える：
//
//	sum     … 重複商品はサーバー数量＋ローカル数量
//	replace … 重複商品はローカル数量で置き換え
//
// どちらも現在在庫で頭打ちにする。存在しない・非公開の商品は黙ってスキップ。
func (u *CartUsecase) MergeCart(ctx context.Context, userID int64, localItems []MergeCartItem) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, newUnauthorized()
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	serverItems, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	serverQty := make(map[int64]int64, len(serverItems))
	for _, it := range serverItems {
		serverQty[it.ProductID] = it.Quantity
	}

	for _, li := range localItems {
		if li.ProductID <= 0 || li.Quantity < 1 {
			continue
		}

		p, err := u.productRepo.FindByID(ctx, li.ProductID)
		if err == repo.ErrNotFound {
			continue
		}
		if err != nil {
			return CartResponse{}, newInternal()
		}
		if !p.IsActive || p.Stock < 1 {
			continue
		}

		var want int64
		if u.mergePolicy == "replace" {
			want = li.Quantity
		} else {
			want = serverQty[li.ProductID] + li.Quantity
		}

		//在庫で頭打ち
		if want > p.Stock {
			want = p.Stock
		}

		if err := u.cartItemRepo.SetQuantityByCartAndProduct(ctx, cart.ID, li.ProductID, want, p.Price); err != nil {
			return CartResponse{}, newInternal()
		}
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// cartIDの明細をまとめてCartResponseを作る。
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, newInternal()
	}

	respItems := make([]CartItemResponse, 0, len(items))
	var total int64 = 0

	for _, it := range items {
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		if err != nil {
			continue
		}
		if !p.IsActive {
			continue
		}

		respItems = append(respItems, CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      p.Name,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})

		total += it.UnitPriceSnapshot * it.Quantity
	}

	return CartResponse{Items: respItems, Total: total}, nil
}
