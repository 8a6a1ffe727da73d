package repository

import (
	"context"
	"strconv"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
)

// ClassRepository 班级数据访问接口
type ClassRepository interface {
	List(ctx context.Context) ([]model.ClassSection, error)
	// GetByID 不存在时返回 ErrNotFound
	GetByID(ctx context.Context, id int64) (*model.ClassSection, error)
}

type classRepo struct {
	api *APIClient
}

// NewClassRepo 创建 ClassRepository 实例
func NewClassRepo(api *APIClient) ClassRepository {
	return &classRepo{api: api}
}

func (r *classRepo) List(ctx context.Context) ([]model.ClassSection, error) {
	var classes []model.ClassSection
	if err := r.api.get(ctx, "classes.list", "/classes", nil, &classes); err != nil {
		return nil, err
	}
	return classes, nil
}

func (r *classRepo) GetByID(ctx context.Context, id int64) (*model.ClassSection, error) {
	var cls model.ClassSection
	if err := r.api.get(ctx, "classes.get", "/classes/"+strconv.FormatInt(id, 10), nil, &cls); err != nil {
		return nil, err
	}
	return &cls, nil
}
