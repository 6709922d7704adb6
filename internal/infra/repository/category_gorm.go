package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type CategoryGormRepository struct {
	db *gorm.DB
}

func NewCategoryGormRepository(db *gorm.DB) *CategoryGormRepository {
	return &CategoryGormRepository{db: db}
}

func (r *CategoryGormRepository) List(ctx context.Context) ([]model.Category, error) {
	var rows []model.Category
	if err := r.db.WithContext(ctx).Order("name asc").Find(&rows).Error; err != nil {
		return []model.Category{}, err
	}
	return rows, nil
}

func (r *CategoryGormRepository) FindByID(ctx context.Context, id int64) (model.Category, error) {
	var c model.Category
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Category{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Category{}, err
	}
	return c, nil
}

func (r *CategoryGormRepository) Create(ctx context.Context, c model.Category) (model.Category, error) {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return model.Category{}, err
	}
	return c, nil
}

type BrandGormRepository struct {
	db *gorm.DB
}

func NewBrandGormRepository(db *gorm.DB) *BrandGormRepository {
	return &BrandGormRepository{db: db}
}

func (r *BrandGormRepository) List(ctx context.Context) ([]model.Brand, error) {
	var rows []model.Brand
	if err := r.db.WithContext(ctx).Order("name asc").Find(&rows).Error; err != nil {
		return []model.Brand{}, err
	}
	return rows, nil
}

func (r *BrandGormRepository) FindByID(ctx context.Context, id int64) (model.Brand, error) {
	var b model.Brand
	err := r.db.WithContext(ctx).First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Brand{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Brand{}, err
	}
	return b, nil
}

func (r *BrandGormRepository) Create(ctx context.Context, b model.Brand) (model.Brand, error) {
	if err := r.db.WithContext(ctx).Create(&b).Error; err != nil {
		return model.Brand{}, err
	}
	return b, nil
}
