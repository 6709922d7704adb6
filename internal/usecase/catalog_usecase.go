package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// 商品一覧キャッシュ（Redis）。nilでも動く。
type ProductListCache interface {
	GetList(ctx context.Context, listKey string) ([]byte, bool)
	SetList(ctx context.Context, listKey string, data []byte)
	Invalidate(ctx context.Context)
}

// カタログ（商品・カテゴリ・ブランド）の読み取りと管理者操作。
type CatalogUsecase struct {
	productRepo   repo.ProductRepository
	categoryRepo  repo.CategoryRepository
	brandRepo     repo.BrandRepository
	inventoryRepo repo.InventoryRepository
	auditRepo     repo.AuditLogRepository
	cache         ProductListCache
}

func NewCatalogUsecase(
	productRepo repo.ProductRepository,
	categoryRepo repo.CategoryRepository,
	brandRepo repo.BrandRepository,
	inventoryRepo repo.InventoryRepository,
	auditRepo repo.AuditLogRepository,
	cache ProductListCache,
) *CatalogUsecase {
	return &CatalogUsecase{
		productRepo:   productRepo,
		categoryRepo:  categoryRepo,
		brandRepo:     brandRepo,
		inventoryRepo: inventoryRepo,
		auditRepo:     auditRepo,
		cache:         cache,
	}
}

// GET /products の入力DTO
type ListProductsInput struct {
	Page       int
	Limit      int
	Q          string
	CategoryID *int64
	BrandID    *int64
	MinPrice   *int64
	MaxPrice   *int64
	Sort       string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *CatalogUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, newValidationError("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, newValidationError("invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, newValidationError("invalid q")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
		// OK
	default:
		return ProductListOutput{}, newValidationError("invalid sort")
	}

	key := listCacheKey(in)
	if u.cache != nil {
		if data, ok := u.cache.GetList(ctx, key); ok {
			var out ProductListOutput
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
		}
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:       in.Page,
		Limit:      in.Limit,
		Q:          strings.TrimSpace(in.Q),
		CategoryID: in.CategoryID,
		BrandID:    in.BrandID,
		MinPrice:   in.MinPrice,
		MaxPrice:   in.MaxPrice,
		Sort:       in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, newInternal()
	}

	out := ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}

	if u.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			u.cache.SetList(ctx, key, data)
		}
	}

	return out, nil
}

// 公開中の商品詳細。見つからない・非公開は404。
func (u *CatalogUsecase) GetPublicProduct(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, newValidationError("invalid id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, newNotFound()
	}
	if err != nil {
		return model.Product{}, newInternal()
	}
	if !p.IsActive {
		return model.Product{}, newNotFound()
	}
	return p, nil
}

func (u *CatalogUsecase) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := u.categoryRepo.List(ctx)
	if err != nil {
		return []model.Category{}, newInternal()
	}
	return rows, nil
}

func (u *CatalogUsecase) ListBrands(ctx context.Context) ([]model.Brand, error) {
	rows, err := u.brandRepo.List(ctx)
	if err != nil {
		return []model.Brand{}, newInternal()
	}
	return rows, nil
}

type AdminCreateProductInput struct {
	Name        string
	Description string
	Price       int64
	Stock       int64
	IsActive    bool
	CategoryID  *int64
	BrandID     *int64
}

type AdminUpdateProductInput struct {
	Name        string
	Description string
	Price       int64
	IsActive    bool
	CategoryID  *int64
	BrandID     *int64
}

// 商品作成（管理者）
func (u *CatalogUsecase) AdminCreateProduct(ctx context.Context, actorAdminUserID int64, in AdminCreateProductInput) (model.Product, error) {
	if actorAdminUserID <= 0 {
		return model.Product{}, newUnauthorized()
	}
	if strings.TrimSpace(in.Name) == "" || len(in.Name) > 255 {
		return model.Product{}, newValidationError("invalid name")
	}
	if in.Price < 0 {
		return model.Product{}, newValidationError("invalid price")
	}
	if in.Stock < 0 {
		return model.Product{}, newValidationError("invalid stock")
	}
	if err := u.checkRefs(ctx, in.CategoryID, in.BrandID); err != nil {
		return model.Product{}, err
	}

	created, err := u.productRepo.Create(ctx, model.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    in.IsActive,
		CategoryID:  in.CategoryID,
		BrandID:     in.BrandID,
	})
	if err != nil {
		return model.Product{}, newInternal()
	}

	u.invalidateCache(ctx)
	return created, nil
}

// 商品更新（管理者）。在庫はここでは触らない（SetStockで）。
func (u *CatalogUsecase) AdminUpdateProduct(ctx context.Context, actorAdminUserID int64, productID int64, in AdminUpdateProductInput) (model.Product, error) {
	if actorAdminUserID <= 0 {
		return model.Product{}, newUnauthorized()
	}
	if productID <= 0 {
		return model.Product{}, newValidationError("invalid id")
	}
	if strings.TrimSpace(in.Name) == "" || len(in.Name) > 255 {
		return model.Product{}, newValidationError("invalid name")
	}
	if in.Price < 0 {
		return model.Product{}, newValidationError("invalid price")
	}
	if err := u.checkRefs(ctx, in.CategoryID, in.BrandID); err != nil {
		return model.Product{}, err
	}

	p := model.Product{
		ID:          productID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		IsActive:    in.IsActive,
		CategoryID:  in.CategoryID,
		BrandID:     in.BrandID,
	}

	if err := u.productRepo.Update(ctx, p); err != nil {
		if err == repo.ErrNotFound {
			return model.Product{}, newNotFound()
		}
		return model.Product{}, newInternal()
	}

	u.invalidateCache(ctx)

	updated, err := u.productRepo.FindByID(ctx, productID)
	if err != nil {
		return model.Product{}, newInternal()
	}
	return updated, nil
}

// 商品削除（管理者、ソフトデリート）
func (u *CatalogUsecase) AdminDeleteProduct(ctx context.Context, actorAdminUserID int64, productID int64) error {
	if actorAdminUserID <= 0 {
		return newUnauthorized()
	}
	if productID <= 0 {
		return newValidationError("invalid id")
	}

	if err := u.productRepo.SoftDelete(ctx, productID); err != nil {
		if err == repo.ErrNotFound {
			return newNotFound()
		}
		return newInternal()
	}

	u.invalidateCache(ctx)
	return nil
}

// 在庫を現在値に設定（管理者）。調整履歴と監査ログを残す。
func (u *CatalogUsecase) AdminSetStock(ctx context.Context, actorAdminUserID int64, productID int64, newStock int64, reason string) error {
	if actorAdminUserID <= 0 {
		return newUnauthorized()
	}
	if productID <= 0 {
		return newValidationError("invalid id")
	}
	if newStock < 0 {
		return newValidationError("invalid stock")
	}
	if strings.TrimSpace(reason) == "" {
		return newValidationError("reason is required")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return newNotFound()
	}
	if err != nil {
		return newInternal()
	}

	if err := u.inventoryRepo.SetStock(ctx, productID, newStock); err != nil {
		if err == repo.ErrNotFound {
			return newNotFound()
		}
		return newInternal()
	}

	if err := u.inventoryRepo.CreateAdjustment(ctx, model.InventoryAdjustment{
		ProductID:   productID,
		AdminUserID: actorAdminUserID,
		Delta:       newStock - p.Stock,
		Reason:      strings.TrimSpace(reason),
	}); err != nil {
		return newInternal()
	}

	//監査ログ（UPDATE_STOCK）
	beforeJSON := fmt.Sprintf(`{"stock":%d}`, p.Stock)
	afterJSON := fmt.Sprintf(`{"stock":%d}`, newStock)
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actorAdminUserID,
		Action:       model.AuditActionUpdateStock,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   beforeJSON,
		AfterJSON:    afterJSON,
		CreatedAt:    time.Now(),
	}); err != nil {
		return newInternal()
	}

	u.invalidateCache(ctx)
	return nil
}

type AdminCreateCategoryInput struct {
	Name string
}

func (u *CatalogUsecase) AdminCreateCategory(ctx context.Context, actorAdminUserID int64, in AdminCreateCategoryInput) (model.Category, error) {
	if actorAdminUserID <= 0 {
		return model.Category{}, newUnauthorized()
	}
	if strings.TrimSpace(in.Name) == "" || len(in.Name) > 100 {
		return model.Category{}, newValidationError("invalid name")
	}

	created, err := u.categoryRepo.Create(ctx, model.Category{Name: strings.TrimSpace(in.Name)})
	if err != nil {
		return model.Category{}, newInternal()
	}
	return created, nil
}

func (u *CatalogUsecase) AdminCreateBrand(ctx context.Context, actorAdminUserID int64, in AdminCreateCategoryInput) (model.Brand, error) {
	if actorAdminUserID <= 0 {
		return model.Brand{}, newUnauthorized()
	}
	if strings.TrimSpace(in.Name) == "" || len(in.Name) > 100 {
		return model.Brand{}, newValidationError("invalid name")
	}

	created, err := u.brandRepo.Create(ctx, model.Brand{Name: strings.TrimSpace(in.Name)})
	if err != nil {
		return model.Brand{}, newInternal()
	}
	return created, nil
}

// カテゴリ・ブランド参照の存在確認
func (u *CatalogUsecase) checkRefs(ctx context.Context, categoryID *int64, brandID *int64) error {
	if categoryID != nil {
		if _, err := u.categoryRepo.FindByID(ctx, *categoryID); err != nil {
			if err == repo.ErrNotFound {
				return newValidationError("invalid category_id")
			}
			return newInternal()
		}
	}
	if brandID != nil {
		if _, err := u.brandRepo.FindByID(ctx, *brandID); err != nil {
			if err == repo.ErrNotFound {
				return newValidationError("invalid brand_id")
			}
			return newInternal()
		}
	}
	return nil
}

func (u *CatalogUsecase) invalidateCache(ctx context.Context) {
	if u.cache != nil {
		u.cache.Invalidate(ctx)
	}
}

func listCacheKey(in ListProductsInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "p=%d:l=%d:q=%s:s=%s", in.Page, in.Limit, strings.TrimSpace(in.Q), in.Sort)
	if in.CategoryID != nil {
		fmt.Fprintf(&b, ":c=%d", *in.CategoryID)
	}
	if in.BrandID != nil {
		fmt.Fprintf(&b, ":b=%d", *in.BrandID)
	}
	if in.MinPrice != nil {
		fmt.Fprintf(&b, ":min=%d", *in.MinPrice)
	}
	if in.MaxPrice != nil {
		fmt.Fprintf(&b, ":max=%d", *in.MaxPrice)
	}
	return b.String()
}
