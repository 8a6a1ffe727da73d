package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/dto"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/dateutil"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/metrics"
)

// ── 出勤模块业务错误 ──

var (
	ErrClassRequired    = errors.New("please select a class first")
	ErrStudentRequired  = errors.New("student is required")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidRange     = errors.New("start date must not be after end date")
	ErrSameMoveDate     = errors.New("source and target dates must differ")
	ErrEmptyRoster      = errors.New("no students found in this class")
	ErrScheduleNotFound = errors.New("no scheduled dates found for this class in the selected range")
	// ErrStaleLoad 加载期间发起了更新的加载，本次结果不应渲染
	ErrStaleLoad = errors.New("stale attendance load")
)

// ── AttendanceService 接口 ──────────────────────────────────
//
// 设计说明：
//   - 视图状态（班级 + 日期范围）按浏览器会话显式保存，所有操作以 sessionID 取用
//   - 任何班级或范围变化都会重新加载矩阵
//   - 每次加载分配递增序号，完成时序号已过期则返回 ErrStaleLoad
//   - 单元格切换只在持久化成功后返回新状态，失败时单元格保持原样
//   - 渲染后钩子按注册顺序显式调用
// ─────────────────────────────────────────────────────────────

// AttendanceService 出勤视图控制器
type AttendanceService interface {
	// State 读取会话的视图状态
	State(ctx context.Context, sessionID string) (*model.ViewState, error)
	// ListClasses 班级选择器数据
	ListClasses(ctx context.Context) ([]model.ClassSection, error)
	// SelectClass 切换班级并重新加载
	SelectClass(ctx context.Context, sessionID string, classID int64) (*AttendanceView, error)
	// SetRange 修改日期范围并重新加载
	SetRange(ctx context.Context, sessionID string, req *dto.SetRangeRequest) (*AttendanceView, error)
	// LoadMatrix 按当前视图状态加载矩阵（带加载序号）
	LoadMatrix(ctx context.Context, sessionID string) (*AttendanceView, error)
	// CurrentView 按当前视图状态构建矩阵，不参与加载排序（用于导出）
	CurrentView(ctx context.Context, sessionID string) (*AttendanceView, error)
	// ViewOf 按给定视图状态构建矩阵，不读写会话状态
	ViewOf(ctx context.Context, state *model.ViewState) (*AttendanceView, error)
	// ToggleCell 单元格状态切换并持久化
	ToggleCell(ctx context.Context, sessionID string, req *dto.ToggleCellRequest) (*dto.CellUpdateResponse, error)
	// ResolveScheduleRange 由课表推导日期范围，成功后替换范围并重新加载
	ResolveScheduleRange(ctx context.Context, sessionID string, req *dto.ResolveScheduleRequest) (*dto.ScheduleRangeResponse, *AttendanceView, error)
	// CreateSheet 为某班某日的每个学生创建未标记记录
	CreateSheet(ctx context.Context, sessionID string, req *dto.CreateSheetRequest) (*dto.CreateSheetResponse, *AttendanceView, error)
	// MoveRecords 把某班某日的全部记录移到另一日期（源日期记录被移走）
	MoveRecords(ctx context.Context, sessionID string, req *dto.MoveRecordsRequest) (*dto.MoveAttendanceResponse, *AttendanceView, error)
}

// AttendanceView 一次加载的渲染结果
type AttendanceView struct {
	State model.ViewState
	Grid  *RenderableGrid // 未选择班级时为 nil
	// 日期选择器的初始值，由渲染后钩子填充
	PickerStart string
	PickerEnd   string
}

// PostRenderHook 矩阵构建完成后执行的钩子
type PostRenderHook func(ctx context.Context, view *AttendanceView)

type attendanceService struct {
	repo             *repository.Repository
	hooks            []PostRenderHook
	clock            func() time.Time
	sheetConcurrency int
	lookbackMonths   int
	metrics          *metrics.Metrics
	logger           *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(
	cfg *config.AttendanceConfig,
	repo *repository.Repository,
	m *metrics.Metrics,
	logger *zap.Logger,
	hooks ...PostRenderHook,
) AttendanceService {
	concurrency := cfg.SheetConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	lookback := cfg.DefaultLookbackMonths
	if lookback < 1 {
		lookback = 6
	}
	return &attendanceService{
		repo:             repo,
		hooks:            hooks,
		clock:            time.Now,
		sheetConcurrency: concurrency,
		lookbackMonths:   lookback,
		metrics:          m,
		logger:           logger,
	}
}

// ── 渲染后钩子 ──

// DatePickerDefaultsHook 为日期选择器填充初始值：已设置的范围优先，否则取表格首尾列
func DatePickerDefaultsHook(_ context.Context, view *AttendanceView) {
	view.PickerStart = view.State.Range.Start
	view.PickerEnd = view.State.Range.End
	if view.Grid == nil || len(view.Grid.Columns) == 0 {
		return
	}
	if view.PickerStart == "" {
		view.PickerStart = view.Grid.Columns[0].Date
	}
	if view.PickerEnd == "" {
		view.PickerEnd = view.Grid.Columns[len(view.Grid.Columns)-1].Date
	}
}

// GridMetricsHook 记录渲染的单元格数量
func GridMetricsHook(m *metrics.Metrics) PostRenderHook {
	return func(_ context.Context, view *AttendanceView) {
		if view.Grid != nil {
			m.SetGridCells(view.Grid.CellCount())
		}
	}
}

// ════════════════════════════════════════════════════════════
// 视图状态与加载
// ════════════════════════════════════════════════════════════

func (s *attendanceService) State(ctx context.Context, sessionID string) (*model.ViewState, error) {
	return s.repo.ViewState.Get(ctx, sessionID)
}

func (s *attendanceService) ListClasses(ctx context.Context) ([]model.ClassSection, error) {
	classes, err := s.repo.Class.List(ctx)
	if err != nil {
		s.logger.Error("查询班级列表失败", zap.Error(err))
		return nil, err
	}
	return classes, nil
}

func (s *attendanceService) SelectClass(ctx context.Context, sessionID string, classID int64) (*AttendanceView, error) {
	if classID <= 0 {
		return nil, ErrClassRequired
	}
	state, err := s.repo.ViewState.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state.ClassID = classID
	if err := s.repo.ViewState.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}
	return s.LoadMatrix(ctx, sessionID)
}

func (s *attendanceService) SetRange(ctx context.Context, sessionID string, req *dto.SetRangeRequest) (*AttendanceView, error) {
	rng, err := normalizeRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	state, err := s.repo.ViewState.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state.Range = rng
	if err := s.repo.ViewState.Save(ctx, sessionID, state); err != nil {
		return nil, err
	}
	return s.LoadMatrix(ctx, sessionID)
}

// ════════════════════════════════════════════════════════════
// LoadMatrix 加载出勤矩阵
// ════════════════════════════════════════════════════════════
//
// 流程：
//   1. 读取视图状态；未选择班级时返回空视图
//   2. 分配加载序号
//   3. 请求矩阵 → 构建表格 → 执行渲染后钩子
//   4. 若期间有更新的加载，返回 ErrStaleLoad

func (s *attendanceService) LoadMatrix(ctx context.Context, sessionID string) (*AttendanceView, error) {
	state, err := s.repo.ViewState.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !state.HasClass() {
		return &AttendanceView{State: *state}, nil
	}

	seq, err := s.repo.ViewState.NextLoadSeq(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view, err := s.buildView(ctx, state)
	if err != nil {
		return nil, err
	}

	latest, err := s.repo.ViewState.LatestLoadSeq(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if latest > seq {
		s.logger.Debug("丢弃过期的矩阵加载",
			zap.String("session_id", sessionID),
			zap.Int64("seq", seq),
			zap.Int64("latest", latest),
		)
		return nil, ErrStaleLoad
	}
	return view, nil
}

func (s *attendanceService) CurrentView(ctx context.Context, sessionID string) (*AttendanceView, error) {
	state, err := s.repo.ViewState.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.ViewOf(ctx, state)
}

func (s *attendanceService) ViewOf(ctx context.Context, state *model.ViewState) (*AttendanceView, error) {
	if !state.HasClass() {
		return nil, ErrClassRequired
	}
	return s.buildView(ctx, state)
}

func (s *attendanceService) buildView(ctx context.Context, state *model.ViewState) (*AttendanceView, error) {
	matrix, err := s.repo.Attendance.GetMatrix(ctx, state.ClassID, state.Range)
	if err != nil {
		s.logger.Error("查询出勤矩阵失败", zap.Int64("class_id", state.ClassID), zap.Error(err))
		return nil, err
	}

	records, skipped := RecordsFromMatrix(state.ClassID, matrix.Attendance)
	if skipped > 0 {
		s.logger.Warn("出勤矩阵中存在无法解析的记录", zap.Int("skipped", skipped))
	}

	view := &AttendanceView{
		State: *state,
		Grid:  BuildGrid(matrix.Students, matrix.Dates, records, s.clock()),
	}
	for _, hook := range s.hooks {
		hook(ctx, view)
	}
	return view, nil
}

// ════════════════════════════════════════════════════════════
// ToggleCell 单元格状态切换
// ════════════════════════════════════════════════════════════

func (s *attendanceService) ToggleCell(ctx context.Context, sessionID string, req *dto.ToggleCellRequest) (*dto.CellUpdateResponse, error) {
	// 以单元格所在表格的班级为准；页面上的表格可能落后于会话状态
	classID := req.ClassID
	if classID <= 0 {
		state, err := s.repo.ViewState.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		classID = state.ClassID
	}
	if classID <= 0 {
		return nil, ErrClassRequired
	}
	if req.StudentID <= 0 {
		return nil, ErrStudentRequired
	}
	date, ok := dateutil.NormalizeString(req.Date)
	if !ok {
		return nil, ErrInvalidDate
	}

	next := model.ParseDisplayedStatus(req.CurrentText).Next()

	if _, err := s.repo.Attendance.Upsert(ctx, &dto.UpsertAttendanceRequest{
		StudentID: req.StudentID,
		ClassID:   classID,
		Date:      date,
		Status:    string(next),
	}); err != nil {
		s.logger.Error("保存出勤状态失败",
			zap.Int64("class_id", classID),
			zap.Int64("student_id", req.StudentID),
			zap.String("date", date),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.IncToggle(string(next))

	return &dto.CellUpdateResponse{
		StudentID:  req.StudentID,
		Date:       date,
		Text:       string(next),
		StyleClass: next.StyleClass(),
	}, nil
}

// ════════════════════════════════════════════════════════════
// ResolveScheduleRange 由课表推导日期范围
// ════════════════════════════════════════════════════════════
//
// 起止日期为空时分别默认为"今天往前 N 个月"和"今天"。
// 服务端返回非空日期列表时用其边界替换视图范围并重新加载；
// 返回空列表时范围保持不变并提示未找到课表。失败不自动重试。

func (s *attendanceService) ResolveScheduleRange(ctx context.Context, sessionID string, req *dto.ResolveScheduleRequest) (*dto.ScheduleRangeResponse, *AttendanceView, error) {
	state, err := s.repo.ViewState.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	classID := req.ClassID
	if classID <= 0 {
		classID = state.ClassID
	}
	if classID <= 0 {
		return nil, nil, ErrClassRequired
	}

	rng, err := s.scheduleQueryRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, nil, err
	}

	resp, err := s.repo.Attendance.ScheduleDates(ctx, classID, rng)
	if err != nil {
		s.logger.Error("查询课表日期失败", zap.Int64("class_id", classID), zap.Error(err))
		return nil, nil, err
	}

	dates := make([]string, 0, len(resp.Dates))
	for _, d := range resp.Dates {
		if c, ok := dateutil.NormalizeString(d); ok {
			dates = append(dates, c)
		}
	}
	if len(dates) == 0 {
		return nil, nil, ErrScheduleNotFound
	}
	sort.Strings(dates)

	start, ok := dateutil.NormalizeString(resp.StartDate)
	if !ok {
		start = dates[0]
	}
	end, ok := dateutil.NormalizeString(resp.EndDate)
	if !ok {
		end = dates[len(dates)-1]
	}

	state.ClassID = classID
	state.Range = model.DateRange{Start: start, End: end}
	if err := s.repo.ViewState.Save(ctx, sessionID, state); err != nil {
		return nil, nil, err
	}

	result := &dto.ScheduleRangeResponse{
		StartDate: start,
		EndDate:   end,
		Dates:     dates,
		Schedule:  resp.Schedule,
	}
	view, err := s.LoadMatrix(ctx, sessionID)
	if err != nil {
		return result, nil, err
	}
	return result, view, nil
}

func (s *attendanceService) scheduleQueryRange(start, end string) (model.DateRange, error) {
	today := dateutil.Today(s.clock)
	if end == "" {
		end = today
	}
	if start == "" {
		start, _ = dateutil.AddMonths(today, -s.lookbackMonths)
	}
	return normalizeRange(start, end)
}

// ════════════════════════════════════════════════════════════
// CreateSheet 批量建表
// ════════════════════════════════════════════════════════════

func (s *attendanceService) CreateSheet(ctx context.Context, sessionID string, req *dto.CreateSheetRequest) (*dto.CreateSheetResponse, *AttendanceView, error) {
	state, err := s.repo.ViewState.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	classID := req.ClassID
	if classID <= 0 {
		classID = state.ClassID
	}
	if classID <= 0 {
		return nil, nil, ErrClassRequired
	}
	date, ok := dateutil.NormalizeString(req.Date)
	if !ok {
		return nil, nil, ErrInvalidDate
	}

	roster, err := s.repo.Student.ListByClass(ctx, classID)
	if err != nil {
		s.logger.Error("查询班级花名册失败", zap.Int64("class_id", classID), zap.Error(err))
		return nil, nil, err
	}
	if len(roster) == 0 {
		return nil, nil, ErrEmptyRoster
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sheetConcurrency)
	for _, st := range roster {
		studentID := st.ID
		g.Go(func() error {
			_, err := s.repo.Attendance.Upsert(gctx, &dto.UpsertAttendanceRequest{
				StudentID: studentID,
				ClassID:   classID,
				Date:      date,
				Status:    string(model.StatusUnset),
			})
			if err != nil {
				return fmt.Errorf("学生 %d: %w", studentID, err)
			}
			created.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("批量建表失败",
			zap.Int64("class_id", classID),
			zap.String("date", date),
			zap.Int64("created", created.Load()),
			zap.Error(err),
		)
		return nil, nil, err
	}

	resp := &dto.CreateSheetResponse{ClassID: classID, Date: date, Created: int(created.Load())}
	if state.ClassID != classID {
		return resp, nil, nil
	}
	view, err := s.LoadMatrix(ctx, sessionID)
	if err != nil {
		return resp, nil, err
	}
	resp.Reloaded = true
	return resp, view, nil
}

// ════════════════════════════════════════════════════════════
// MoveRecords 移动记录
// ════════════════════════════════════════════════════════════

func (s *attendanceService) MoveRecords(ctx context.Context, sessionID string, req *dto.MoveRecordsRequest) (*dto.MoveAttendanceResponse, *AttendanceView, error) {
	state, err := s.repo.ViewState.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	classID := req.ClassID
	if classID <= 0 {
		classID = state.ClassID
	}
	if classID <= 0 {
		return nil, nil, ErrClassRequired
	}
	from, ok := dateutil.NormalizeString(req.FromDate)
	if !ok {
		return nil, nil, ErrInvalidDate
	}
	to, ok := dateutil.NormalizeString(req.ToDate)
	if !ok {
		return nil, nil, ErrInvalidDate
	}
	if from == to {
		return nil, nil, ErrSameMoveDate
	}

	resp, err := s.repo.Attendance.Move(ctx, &dto.MoveAttendanceRequest{ClassID: classID, FromDate: from, ToDate: to})
	if err != nil {
		s.logger.Error("移动出勤记录失败",
			zap.Int64("class_id", classID),
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
		return nil, nil, err
	}
	s.logger.Info("出勤记录已移动",
		zap.Int64("class_id", classID),
		zap.String("from", from),
		zap.String("to", to),
		zap.Int("moved", resp.Moved),
	)

	view, err := s.LoadMatrix(ctx, sessionID)
	if err != nil {
		return resp, nil, err
	}
	return resp, view, nil
}

// ── 辅助函数 ──

// normalizeRange 规范化日期范围；两端均可为空
func normalizeRange(start, end string) (model.DateRange, error) {
	var r model.DateRange
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start != "" {
		d, ok := dateutil.NormalizeString(start)
		if !ok {
			return r, ErrInvalidDate
		}
		r.Start = d
	}
	if end != "" {
		d, ok := dateutil.NormalizeString(end)
		if !ok {
			return r, ErrInvalidDate
		}
		r.End = d
	}
	if r.Start != "" && r.End != "" && r.Start > r.End {
		return r, ErrInvalidRange
	}
	return r, nil
}
