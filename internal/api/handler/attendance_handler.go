package handler

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/dto"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/service"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/dateutil"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/response"
)

// 出勤模块错误码
const (
	codeAttendanceInvalid = 21001
	codeClassRequired     = 21002
	codeEmptyRoster       = 21003
	codeUnknownAction     = 21004
	codeScheduleNotFound  = 21101
	codeGridRenderFailed  = 21501
)

// actionFunc 处理一个浏览器操作；sessionID 已由中间件确定
type actionFunc func(c *gin.Context, sessionID string)

// AttendanceHandler 出勤页面与操作接口
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
	tmpl          *template.Template
	actions       map[string]actionFunc
	clock         func() time.Time
	logger        *zap.Logger
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService, tmpl *template.Template, logger *zap.Logger) *AttendanceHandler {
	h := &AttendanceHandler{
		attendanceSvc: attendanceSvc,
		tmpl:          tmpl,
		clock:         time.Now,
		logger:        logger,
	}
	h.actions = map[string]actionFunc{
		"load":             h.load,
		"select-class":     h.selectClass,
		"set-range":        h.setRange,
		"toggle":           h.toggle,
		"resolve-schedule": h.resolveSchedule,
		"create-sheet":     h.createSheet,
		"move":             h.move,
	}
	return h
}

// Page 出勤页面
// GET /attendance
func (h *AttendanceHandler) Page(c *gin.Context) {
	sid, ok := MustGetSessionID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	data := gin.H{"Today": dateutil.Today(h.clock), "Error": ""}

	classes, err := h.attendanceSvc.ListClasses(ctx)
	if err != nil {
		data["Error"] = userMessage(err)
	}
	data["Classes"] = classes

	view, err := h.attendanceSvc.LoadMatrix(ctx, sid)
	if errors.Is(err, service.ErrStaleLoad) {
		// 整页渲染不能丢弃结果，按当前状态直接构建
		view, err = h.attendanceSvc.CurrentView(ctx, sid)
	}
	if err != nil {
		data["Error"] = userMessage(err)
		view = &service.AttendanceView{}
		if state, stateErr := h.attendanceSvc.State(ctx, sid); stateErr == nil {
			view.State = *state
			view.PickerStart, view.PickerEnd = state.Range.Start, state.Range.End
		}
	}
	data["View"] = view

	c.HTML(http.StatusOK, "attendance.html", data)
}

// Grid 重新渲染表格片段
// GET /attendance/grid
func (h *AttendanceHandler) Grid(c *gin.Context) {
	sid, ok := MustGetSessionID(c)
	if !ok {
		return
	}
	h.load(c, sid)
}

// Action 按名称分发浏览器操作
// POST /attendance/actions/:action
func (h *AttendanceHandler) Action(c *gin.Context) {
	fn, found := h.actions[c.Param("action")]
	if !found {
		response.NotFound(c, codeUnknownAction, "Unknown action")
		return
	}
	sid, ok := MustGetSessionID(c)
	if !ok {
		return
	}
	fn(c, sid)
}

// ── 操作 ──

func (h *AttendanceHandler) load(c *gin.Context, sid string) {
	view, err := h.attendanceSvc.LoadMatrix(c.Request.Context(), sid)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	h.writeFragment(c, view)
}

func (h *AttendanceHandler) selectClass(c *gin.Context, sid string) {
	var req dto.SelectClassRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidRequest(c, codeAttendanceInvalid, "Invalid class", err)
		return
	}
	view, err := h.attendanceSvc.SelectClass(c.Request.Context(), sid, req.ClassID)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	h.writeFragment(c, view)
}

func (h *AttendanceHandler) setRange(c *gin.Context, sid string) {
	var req dto.SetRangeRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidRequest(c, codeAttendanceInvalid, "Invalid date range", err)
		return
	}
	view, err := h.attendanceSvc.SetRange(c.Request.Context(), sid, &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	h.writeFragment(c, view)
}

func (h *AttendanceHandler) toggle(c *gin.Context, sid string) {
	var req dto.ToggleCellRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidRequest(c, codeAttendanceInvalid, "Invalid cell", err)
		return
	}
	result, err := h.attendanceSvc.ToggleCell(c.Request.Context(), sid, &req)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	response.OK(c, result)
}

func (h *AttendanceHandler) resolveSchedule(c *gin.Context, sid string) {
	var req dto.ResolveScheduleRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidRequest(c, codeAttendanceInvalid, "Invalid schedule request", err)
		return
	}
	rng, view, err := h.attendanceSvc.ResolveScheduleRange(c.Request.Context(), sid, &req)
	if err != nil && !(rng != nil && errors.Is(err, service.ErrStaleLoad)) {
		h.handleAttendanceError(c, err)
		return
	}
	var frag *dto.GridFragmentResponse
	if view != nil {
		frag, err = h.fragment(view)
		if err != nil {
			h.renderFailed(c, err)
			return
		}
	}
	response.OK(c, gin.H{"range": rng, "grid": frag})
}

func (h *AttendanceHandler) createSheet(c *gin.Context, sid string) {
	var req dto.CreateSheetRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidRequest(c, codeAttendanceInvalid, "Invalid sheet request", err)
		return
	}
	result, view, err := h.attendanceSvc.CreateSheet(c.Request.Context(), sid, &req)
	h.writeMutation(c, result, result != nil, view, err)
}

func (h *AttendanceHandler) move(c *gin.Context, sid string) {
	var req dto.MoveRecordsRequest
	if err := c.ShouldBind(&req); err != nil {
		invalidRequest(c, codeAttendanceInvalid, "Invalid move request", err)
		return
	}
	result, view, err := h.attendanceSvc.MoveRecords(c.Request.Context(), sid, &req)
	h.writeMutation(c, result, result != nil, view, err)
}

// writeMutation 写入建表/移动的结果
// 写操作已成功而重新加载被更新的加载取代时，仍返回结果，只是不带表格
func (h *AttendanceHandler) writeMutation(c *gin.Context, result any, done bool, view *service.AttendanceView, err error) {
	if err != nil && !(done && errors.Is(err, service.ErrStaleLoad)) {
		h.handleAttendanceError(c, err)
		return
	}
	var frag *dto.GridFragmentResponse
	if view != nil {
		frag, err = h.fragment(view)
		if err != nil {
			h.renderFailed(c, err)
			return
		}
	}
	response.OK(c, gin.H{"result": result, "grid": frag})
}

// ── 渲染 ──

func (h *AttendanceHandler) writeFragment(c *gin.Context, view *service.AttendanceView) {
	frag, err := h.fragment(view)
	if err != nil {
		h.renderFailed(c, err)
		return
	}
	response.OK(c, frag)
}

func (h *AttendanceHandler) fragment(view *service.AttendanceView) (*dto.GridFragmentResponse, error) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "grid", view); err != nil {
		return nil, err
	}
	return &dto.GridFragmentResponse{
		HTML:      buf.String(),
		StartDate: view.PickerStart,
		EndDate:   view.PickerEnd,
	}, nil
}

func (h *AttendanceHandler) renderFailed(c *gin.Context, err error) {
	h.logger.Error("渲染出勤表格失败", zap.Error(err))
	response.Error(c, http.StatusInternalServerError, codeGridRenderFailed, "Failed to render attendance grid")
}

// ── 错误映射 ──

func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrStaleLoad):
		response.NoContent(c)
	case errors.Is(err, service.ErrScheduleNotFound):
		response.Notice(c, codeScheduleNotFound, err.Error())
	case errors.Is(err, service.ErrClassRequired):
		response.BadRequest(c, codeClassRequired, err.Error())
	case errors.Is(err, service.ErrEmptyRoster):
		response.BadRequest(c, codeEmptyRoster, err.Error())
	case errors.Is(err, service.ErrStudentRequired),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrSameMoveDate):
		response.BadRequest(c, codeAttendanceInvalid, err.Error())
	case handleUpstreamError(c, err):
	default:
		h.logger.Error("出勤操作失败", zap.String("action", c.Param("action")), zap.Error(err))
		response.InternalError(c)
	}
}

// userMessage 页面横幅中显示的错误文本
func userMessage(err error) string {
	if errors.Is(err, repository.ErrAPIOffline) {
		return repository.ErrAPIOffline.Error()
	}
	var apiErr *repository.APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return "Something went wrong, please try again"
}
