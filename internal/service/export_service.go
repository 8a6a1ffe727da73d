package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/dto"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/dateutil"
)

// ── 导出模块业务错误 ──

var (
	ErrExportEmpty        = errors.New("nothing to export")
	ErrExportGenerateFail = errors.New("failed to generate export file")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - CSV 由浏览器回传页面上正在显示的表格文本，原样写出，不请求远端 API
//   - Excel 按班级与范围重新查询后生成，内容同为表格可见文本
//     （包括无法解析时回退显示的原始日期）
//   - ICS 导出班级课表推导出的上课日期，每个日期一个全天事件
//   - 导出以 bytes.Buffer 返回，由 Handler 层设置下载响应头
type ExportService interface {
	// ExportCSV 将页面回传的表格文本写为 CSV
	ExportCSV(ctx context.Context, req *dto.ExportTableRequest) (*bytes.Buffer, string, error)
	// ExportExcel 导出表格为 Excel；未指定班级时使用会话中的视图
	ExportExcel(ctx context.Context, sessionID string, q *dto.ExportGridQuery) (*bytes.Buffer, string, error)
	// ExportScheduleICS 导出课表日期为 iCalendar
	ExportScheduleICS(ctx context.Context, sessionID string, req *dto.ResolveScheduleRequest) (*bytes.Buffer, string, error)
}

type exportService struct {
	attendance AttendanceService
	repo       *repository.Repository
	clock      func() time.Time
	logger     *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(attendance AttendanceService, repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{attendance: attendance, repo: repo, clock: time.Now, logger: logger}
}

// ════════════════════════════════════════════════════════════
// ExportCSV
// ════════════════════════════════════════════════════════════

func (s *exportService) ExportCSV(_ context.Context, req *dto.ExportTableRequest) (*bytes.Buffer, string, error) {
	if req.ClassID <= 0 {
		return nil, "", ErrClassRequired
	}
	if len(req.Rows) == 0 {
		return nil, "", ErrExportEmpty
	}
	rng, err := normalizeRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, "", err
	}

	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	if err := w.WriteAll(req.Rows); err != nil {
		s.logger.Error("写入 CSV 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, s.filename(req.ClassID, rng, "csv"), nil
}

// ════════════════════════════════════════════════════════════
// ExportExcel
// ════════════════════════════════════════════════════════════
//
// 输出格式：
//   - 单个 Sheet "Attendance"
//   - 第 1 行为表头（学生 + 日期列），分组标题行合并整行并加粗
//   - 出勤单元格按状态着色

func (s *exportService) ExportExcel(ctx context.Context, sessionID string, q *dto.ExportGridQuery) (*bytes.Buffer, string, error) {
	view, err := s.gridView(ctx, sessionID, q)
	if err != nil {
		return nil, "", err
	}
	grid := view.Grid

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Attendance"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	lastCol := colName(len(grid.Columns))
	f.SetColWidth(sheetName, "A", "A", 24)
	if len(grid.Columns) > 0 {
		f.SetColWidth(sheetName, "B", lastCol, 8)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	sectionStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Italic: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F2F2F2"}, Pattern: 1},
	})
	statusStyles := map[string]int{}
	for class, color := range map[string]string{"present": "#C6EFCE", "absent": "#FFC7CE", "partial": "#FFEB9C"} {
		id, _ := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		})
		statusStyles[class] = id
	}

	// 单元格文本与 CSV 相同，逐行写入
	for i, values := range grid.VisibleRows() {
		for j, v := range values {
			f.SetCellValue(sheetName, cell(colName(j), i+1), v)
		}
	}

	// 样式：表头、分组标题行、按状态着色的出勤单元格
	row := 1
	f.SetCellStyle(sheetName, cell("A", row), cell(lastCol, row), headerStyle)
	for _, sec := range grid.Sections {
		row++
		if len(grid.Columns) > 0 {
			f.MergeCell(sheetName, cell("A", row), cell(lastCol, row))
		}
		f.SetCellStyle(sheetName, cell("A", row), cell(lastCol, row), sectionStyle)

		for _, r := range sec.Rows {
			row++
			for i, c := range r.Cells {
				if style, ok := statusStyles[c.StyleClass]; ok {
					ref := cell(colName(i+1), row)
					f.SetCellStyle(sheetName, ref, ref, style)
				}
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	return buf, s.filename(view.State.ClassID, view.State.Range, "xlsx"), nil
}

// gridView 指定班级时按页面上的班级与范围构建，否则取会话中的视图
func (s *exportService) gridView(ctx context.Context, sessionID string, q *dto.ExportGridQuery) (*AttendanceView, error) {
	if q == nil || q.ClassID <= 0 {
		return s.attendance.CurrentView(ctx, sessionID)
	}
	rng, err := normalizeRange(q.StartDate, q.EndDate)
	if err != nil {
		return nil, err
	}
	return s.attendance.ViewOf(ctx, &model.ViewState{ClassID: q.ClassID, Range: rng})
}

// ════════════════════════════════════════════════════════════
// ExportScheduleICS
// ════════════════════════════════════════════════════════════

func (s *exportService) ExportScheduleICS(ctx context.Context, sessionID string, req *dto.ResolveScheduleRequest) (*bytes.Buffer, string, error) {
	state, err := s.attendance.State(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	classID := req.ClassID
	if classID <= 0 {
		classID = state.ClassID
	}
	if classID <= 0 {
		return nil, "", ErrClassRequired
	}

	start, end := req.StartDate, req.EndDate
	if start == "" && end == "" {
		start, end = state.Range.Start, state.Range.End
	}
	rng, err := normalizeRange(start, end)
	if err != nil {
		return nil, "", err
	}

	resp, err := s.repo.Attendance.ScheduleDates(ctx, classID, rng)
	if err != nil {
		s.logger.Error("查询课表日期失败", zap.Int64("class_id", classID), zap.Error(err))
		return nil, "", err
	}

	className := fmt.Sprintf("Class %d", classID)
	cls, err := s.repo.Class.GetByID(ctx, classID)
	switch {
	case err == nil && cls.Name != "":
		className = cls.Name
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("查询班级信息失败，使用默认名称", zap.Int64("class_id", classID), zap.Error(err))
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//Vitamin English//Attendance Admin//EN")
	cal.SetName(className)

	stamp := s.clock().UTC()
	n := 0
	for _, raw := range resp.Dates {
		d, ok := dateutil.NormalizeString(raw)
		if !ok {
			continue
		}
		day, err := dateutil.Parse(d)
		if err != nil {
			continue
		}
		evt := cal.AddEvent(fmt.Sprintf("class-%d-%s@attendance", classID, d))
		evt.SetDtStampTime(stamp)
		evt.SetAllDayStartAt(day)
		evt.SetAllDayEndAt(day.AddDate(0, 0, 1))
		evt.SetSummary(className)
		if resp.Schedule != "" {
			evt.SetDescription(resp.Schedule)
		}
		n++
	}
	if n == 0 {
		return nil, "", ErrScheduleNotFound
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, fmt.Sprintf("schedule_%d.ics", classID), nil
}

// ── 辅助函数 ──

func (s *exportService) filename(classID int64, rng model.DateRange, ext string) string {
	if rng.Start != "" && rng.End != "" {
		return fmt.Sprintf("attendance_%d_%s_%s.%s", classID, rng.Start, rng.End, ext)
	}
	return fmt.Sprintf("attendance_%d_%s.%s", classID, dateutil.Today(s.clock), ext)
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
