package repository

import (
	"context"
	"net/url"
	"strconv"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
)

// StudentRepository 学生数据访问接口
type StudentRepository interface {
	// ListByClass 获取班级花名册
	ListByClass(ctx context.Context, classID int64) ([]model.Student, error)
}

type studentRepo struct {
	api *APIClient
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(api *APIClient) StudentRepository {
	return &studentRepo{api: api}
}

func (r *studentRepo) ListByClass(ctx context.Context, classID int64) ([]model.Student, error) {
	q := url.Values{}
	q.Set("classId", strconv.FormatInt(classID, 10))
	var students []model.Student
	if err := r.api.get(ctx, "students.list", "/students", q, &students); err != nil {
		return nil, err
	}
	return students, nil
}
