package repository

import (
	"context"
	"net/url"
	"strconv"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/dto"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
)

// AttendanceRepository 出勤数据访问接口（由学校 API 提供）
type AttendanceRepository interface {
	// GetMatrix 获取某班在日期范围内的出勤矩阵
	GetMatrix(ctx context.Context, classID int64, r model.DateRange) (*dto.MatrixResponse, error)
	// Upsert 创建或替换单条出勤记录
	Upsert(ctx context.Context, req *dto.UpsertAttendanceRequest) (*model.AttendanceRecord, error)
	// ScheduleDates 由班级课表推导日期范围内的上课日期
	ScheduleDates(ctx context.Context, classID int64, r model.DateRange) (*dto.ScheduleDatesResponse, error)
	// Move 将某班某日的全部记录移动到另一日期
	Move(ctx context.Context, req *dto.MoveAttendanceRequest) (*dto.MoveAttendanceResponse, error)
}

type attendanceRepo struct {
	api *APIClient
}

// NewAttendanceRepo 创建 AttendanceRepository 实例
func NewAttendanceRepo(api *APIClient) AttendanceRepository {
	return &attendanceRepo{api: api}
}

func (r *attendanceRepo) GetMatrix(ctx context.Context, classID int64, dr model.DateRange) (*dto.MatrixResponse, error) {
	var resp dto.MatrixResponse
	if err := r.api.get(ctx, "attendance.matrix", "/attendance/matrix", rangeQuery(classID, dr), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *attendanceRepo) Upsert(ctx context.Context, req *dto.UpsertAttendanceRequest) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	if err := r.api.post(ctx, "attendance.upsert", "/attendance", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *attendanceRepo) ScheduleDates(ctx context.Context, classID int64, dr model.DateRange) (*dto.ScheduleDatesResponse, error) {
	var resp dto.ScheduleDatesResponse
	if err := r.api.get(ctx, "attendance.schedule_dates", "/attendance/schedule-dates", rangeQuery(classID, dr), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (r *attendanceRepo) Move(ctx context.Context, req *dto.MoveAttendanceRequest) (*dto.MoveAttendanceResponse, error) {
	var resp dto.MoveAttendanceResponse
	if err := r.api.post(ctx, "attendance.move", "/attendance/move", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func rangeQuery(classID int64, dr model.DateRange) url.Values {
	q := url.Values{}
	q.Set("classId", strconv.FormatInt(classID, 10))
	if dr.Start != "" {
		q.Set("startDate", dr.Start)
	}
	if dr.End != "" {
		q.Set("endDate", dr.End)
	}
	return q
}
