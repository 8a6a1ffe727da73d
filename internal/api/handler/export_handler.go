package handler

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/dto"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/service"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/response"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeICS  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportCSV 导出页面上正在显示的表格
// POST /attendance/export.csv
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	var req dto.ExportTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c, codeExportInvalid, "Invalid export request", err)
		return
	}
	buf, filename, err := h.exportSvc.ExportCSV(c.Request.Context(), &req)
	h.download(c, buf, filename, contentTypeCSV, err)
}

// ExportExcel 导出表格
// GET /attendance/export.xlsx?class_id=&start_date=&end_date=
func (h *ExportHandler) ExportExcel(c *gin.Context) {
	sid, ok := MustGetSessionID(c)
	if !ok {
		return
	}
	var q dto.ExportGridQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		invalidRequest(c, codeExportInvalid, "Invalid query parameters", err)
		return
	}
	buf, filename, err := h.exportSvc.ExportExcel(c.Request.Context(), sid, &q)
	h.download(c, buf, filename, contentTypeXLSX, err)
}

// ExportScheduleICS 导出班级上课日期
// GET /attendance/schedule.ics?class_id=&start_date=&end_date=
func (h *ExportHandler) ExportScheduleICS(c *gin.Context) {
	sid, ok := MustGetSessionID(c)
	if !ok {
		return
	}
	var req dto.ResolveScheduleRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		invalidRequest(c, codeExportInvalid, "Invalid query parameters", err)
		return
	}
	buf, filename, err := h.exportSvc.ExportScheduleICS(c.Request.Context(), sid, &req)
	h.download(c, buf, filename, contentTypeICS, err)
}

func (h *ExportHandler) download(c *gin.Context, buf *bytes.Buffer, filename, contentType string, err error) {
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	c.Header("Content-Description", "File Transfer")
	response.Attachment(c, url.PathEscape(filename), contentType, buf.Bytes())
}

// 导出模块错误码
const (
	codeExportInvalid      = 22001
	codeExportNoSchedule   = 22101
	codeExportGenerateFail = 22501
)

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrClassRequired):
		response.BadRequest(c, codeClassRequired, err.Error())
	case errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrExportEmpty):
		response.BadRequest(c, codeExportInvalid, err.Error())
	case errors.Is(err, service.ErrScheduleNotFound):
		response.NotFound(c, codeExportNoSchedule, err.Error())
	case errors.Is(err, service.ErrExportGenerateFail):
		response.Error(c, http.StatusInternalServerError, codeExportGenerateFail, err.Error())
	case handleUpstreamError(c, err):
	default:
		response.InternalError(c)
	}
}
