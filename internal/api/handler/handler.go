package handler

import (
	"html/template"

	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Attendance *AttendanceHandler
	Export     *ExportHandler
}

// NewHandler 创建 Handler 聚合
// tmpl 需包含 "attendance.html" 页面与 "grid" 片段
func NewHandler(svc *service.Service, tmpl *template.Template, logger *zap.Logger) *Handler {
	return &Handler{
		Attendance: NewAttendanceHandler(svc.Attendance, tmpl, logger),
		Export:     NewExportHandler(svc.Export),
	}
}
