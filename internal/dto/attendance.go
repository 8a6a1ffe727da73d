package dto

import "github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"

// ── 远端 API 请求/响应 ──

// MatrixResponse GET /attendance/matrix 响应
// Attendance 的 key 形如 "<studentId>-<date>"
type MatrixResponse struct {
	Students   []model.Student   `json:"students"`
	Dates      []string          `json:"dates"`
	Attendance map[string]string `json:"attendance"`
}

// UpsertAttendanceRequest POST /attendance 请求
type UpsertAttendanceRequest struct {
	StudentID int64  `json:"student_id"`
	ClassID   int64  `json:"class_id"`
	Date      string `json:"date"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

// ScheduleDatesResponse GET /attendance/schedule-dates 响应
type ScheduleDatesResponse struct {
	Dates     []string `json:"dates"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	Schedule  string   `json:"schedule"`
}

// MoveAttendanceRequest POST /attendance/move 请求
type MoveAttendanceRequest struct {
	ClassID  int64  `json:"class_id"`
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// MoveAttendanceResponse POST /attendance/move 响应
type MoveAttendanceResponse struct {
	Moved   int    `json:"moved"`
	Message string `json:"message,omitempty"`
}

// ── 浏览器操作请求 ──

// SelectClassRequest 切换班级
type SelectClassRequest struct {
	ClassID int64 `json:"class_id" form:"class_id" binding:"required,min=1"`
}

// SetRangeRequest 修改日期范围
type SetRangeRequest struct {
	StartDate string `json:"start_date" form:"start_date"`
	EndDate   string `json:"end_date" form:"end_date"`
}

// ToggleCellRequest 单元格点击
// ClassID 取自单元格所在表格；缺省时使用会话中的班级
type ToggleCellRequest struct {
	ClassID     int64  `json:"class_id" form:"class_id" binding:"omitempty,min=1"`
	StudentID   int64  `json:"student_id" form:"student_id" binding:"required,min=1"`
	Date        string `json:"date" form:"date" binding:"required"`
	CurrentText string `json:"current" form:"current"`
}

// ResolveScheduleRequest 按班级课表推导日期范围
type ResolveScheduleRequest struct {
	ClassID   int64  `json:"class_id" form:"class_id" binding:"omitempty,min=1"`
	StartDate string `json:"start_date" form:"start_date"`
	EndDate   string `json:"end_date" form:"end_date"`
}

// CreateSheetRequest 批量建表
type CreateSheetRequest struct {
	ClassID int64  `json:"class_id" form:"class_id" binding:"omitempty,min=1"`
	Date    string `json:"date" form:"date" binding:"required"`
}

// MoveRecordsRequest 移动某班某日的全部记录
type MoveRecordsRequest struct {
	ClassID  int64  `json:"class_id" form:"class_id" binding:"omitempty,min=1"`
	FromDate string `json:"from_date" form:"from_date" binding:"required"`
	ToDate   string `json:"to_date" form:"to_date" binding:"required,nefield=FromDate"`
}

// ExportTableRequest 页面回传的当前表格可见文本，逐行一个字符串数组
type ExportTableRequest struct {
	ClassID   int64      `json:"class_id" binding:"required,min=1"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Rows      [][]string `json:"rows" binding:"required,min=1"`
}

// ExportGridQuery Excel 导出参数；ClassID 缺省时使用会话中的视图
type ExportGridQuery struct {
	ClassID   int64  `form:"class_id" binding:"omitempty,min=1"`
	StartDate string `form:"start_date"`
	EndDate   string `form:"end_date"`
}

// ── 浏览器操作响应 ──

// CellUpdateResponse 单元格切换结果，浏览器据此原位替换单元格
type CellUpdateResponse struct {
	StudentID  int64  `json:"student_id"`
	Date       string `json:"date"`
	Text       string `json:"text"`
	StyleClass string `json:"style_class"`
}

// ScheduleRangeResponse 课表推导结果
type ScheduleRangeResponse struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Dates     []string `json:"dates"`
	Schedule  string   `json:"schedule,omitempty"`
}

// CreateSheetResponse 批量建表结果
type CreateSheetResponse struct {
	ClassID  int64  `json:"class_id"`
	Date     string `json:"date"`
	Created  int    `json:"created"`
	Reloaded bool   `json:"reloaded"`
}

// GridFragmentResponse 重新渲染后的表格片段
type GridFragmentResponse struct {
	HTML      string `json:"html"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}
