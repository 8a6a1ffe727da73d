package service

import (
	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/metrics"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Attendance AttendanceService
	Export     ExportService
}

// NewService 创建 Service 聚合
// 渲染后钩子顺序：先填充日期选择器，再记录指标
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	attendance := NewAttendanceService(&cfg.Attendance, repo, m, logger,
		DatePickerDefaultsHook,
		GridMetricsHook(m),
	)
	return &Service{
		Attendance: attendance,
		Export:     NewExportService(attendance, repo, logger),
	}
}
