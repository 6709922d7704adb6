package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CategoryRepository interface {
	List(ctx context.Context) ([]model.Category, error)
	FindByID(ctx context.Context, id int64) (model.Category, error)
	Create(ctx context.Context, c model.Category) (model.Category, error)
}

type BrandRepository interface {
	List(ctx context.Context) ([]model.Brand, error)
	FindByID(ctx context.Context, id int64) (model.Brand, error)
	Create(ctx context.Context, b model.Brand) (model.Brand, error)
}
