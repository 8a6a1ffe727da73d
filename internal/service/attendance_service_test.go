package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/dto"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
)

const sid = "session-1"

func class7Matrix() *dto.MatrixResponse {
	return &dto.MatrixResponse{
		Students: []model.Student{
			{ID: 3, Name: "Chie", Category: model.CategoryRegular},
			{ID: 4, Name: "Dan", Category: model.CategoryTrial},
		},
		Dates:      []string{"2024-01-02", "2024-01-04"},
		Attendance: map[string]string{"3-2024-01-02": "P"},
	}
}

// ── 加载 ──

func TestAttendanceService_LoadMatrix_NoClass(t *testing.T) {
	svc, d := setupTestAttendanceService()

	view, err := svc.LoadMatrix(context.Background(), sid)
	if err != nil {
		t.Fatalf("未选择班级不应报错: %v", err)
	}
	if view.Grid != nil {
		t.Error("未选择班级时不应有表格")
	}
	if len(d.attendance.matrixCalls) != 0 {
		t.Error("未选择班级时不应请求矩阵")
	}
}

func TestAttendanceService_SelectClassAndRange(t *testing.T) {
	svc, d := setupTestAttendanceService(DatePickerDefaultsHook)
	d.attendance.matrix = class7Matrix()
	ctx := context.Background()

	if _, err := svc.SelectClass(ctx, sid, 7); err != nil {
		t.Fatalf("SelectClass 失败: %v", err)
	}
	view, err := svc.SetRange(ctx, sid, &dto.SetRangeRequest{StartDate: "2024-01-01", EndDate: "1/7/2024"})
	if err != nil {
		t.Fatalf("SetRange 失败: %v", err)
	}

	if view.State.ClassID != 7 || view.State.Range != (model.DateRange{Start: "2024-01-01", End: "2024-01-07"}) {
		t.Errorf("视图状态错误: %+v", view.State)
	}
	if got := d.attendance.matrixCalls[len(d.attendance.matrixCalls)-1]; got.Start != "2024-01-01" || got.End != "2024-01-07" {
		t.Errorf("请求范围错误: %+v", got)
	}
	if len(d.attendance.matrixCalls) != 2 {
		t.Errorf("班级与范围变化各应加载一次，实际 %d", len(d.attendance.matrixCalls))
	}

	c, ok := view.Grid.Cell(3, "2024-01-02")
	if !ok || c.Text != "P" || c.StyleClass != "present" {
		t.Errorf("学生 3 在 2024-01-02 应为出勤: %+v", c)
	}
	if c, _ := view.Grid.Cell(4, "2024-01-04"); c.Text != "" {
		t.Errorf("无记录的单元格应为空: %+v", c)
	}
	if view.PickerStart != "2024-01-01" || view.PickerEnd != "2024-01-07" {
		t.Errorf("日期选择器应使用已设置的范围: %s ~ %s", view.PickerStart, view.PickerEnd)
	}
}

func TestAttendanceService_SetRange_Invalid(t *testing.T) {
	svc, _ := setupTestAttendanceService()
	ctx := context.Background()

	_, err := svc.SetRange(ctx, sid, &dto.SetRangeRequest{StartDate: "2024-02-01", EndDate: "2024-01-01"})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("期望 ErrInvalidRange，实际: %v", err)
	}
	_, err = svc.SetRange(ctx, sid, &dto.SetRangeRequest{StartDate: "someday"})
	if !errors.Is(err, ErrInvalidDate) {
		t.Errorf("期望 ErrInvalidDate，实际: %v", err)
	}

	// 空白输入视为未设置
	if _, err := svc.SetRange(ctx, sid, &dto.SetRangeRequest{StartDate: "  ", EndDate: ""}); err != nil {
		t.Errorf("空范围应被接受: %v", err)
	}
}

func TestAttendanceService_DatePickerDefaultsFromColumns(t *testing.T) {
	svc, d := setupTestAttendanceService(DatePickerDefaultsHook)
	d.attendance.matrix = class7Matrix()

	view, err := svc.SelectClass(context.Background(), sid, 7)
	if err != nil {
		t.Fatalf("SelectClass 失败: %v", err)
	}
	if view.PickerStart != "2024-01-02" || view.PickerEnd != "2024-01-04" {
		t.Errorf("未设置范围时应取首尾列: %s ~ %s", view.PickerStart, view.PickerEnd)
	}
}

func TestAttendanceService_HooksRunInOrder(t *testing.T) {
	var order []string
	first := func(context.Context, *AttendanceView) { order = append(order, "first") }
	second := func(context.Context, *AttendanceView) { order = append(order, "second") }
	svc, _ := setupTestAttendanceService(first, second)

	if _, err := svc.SelectClass(context.Background(), sid, 7); err != nil {
		t.Fatalf("SelectClass 失败: %v", err)
	}
	if !reflect.DeepEqual(order, []string{"first", "second"}) {
		t.Errorf("钩子顺序错误: %v", order)
	}
}

func TestAttendanceService_LoadMatrix_Stale(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()
	if _, err := svc.SelectClass(ctx, sid, 7); err != nil {
		t.Fatalf("SelectClass 失败: %v", err)
	}

	// 加载进行中时发起了更新的加载
	d.attendance.beforeMatrix = func() {
		_, _ = d.repo.ViewState.NextLoadSeq(ctx, sid)
	}
	if _, err := svc.LoadMatrix(ctx, sid); !errors.Is(err, ErrStaleLoad) {
		t.Fatalf("期望 ErrStaleLoad，实际: %v", err)
	}

	// 其他会话不受影响
	if _, err := svc.LoadMatrix(ctx, "other-session"); err != nil {
		t.Errorf("其他会话加载失败: %v", err)
	}
}

func TestAttendanceService_LoadMatrix_APIError(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.attendance.matrixErr = repository.ErrAPIOffline

	_, err := svc.SelectClass(context.Background(), sid, 7)
	if !errors.Is(err, repository.ErrAPIOffline) {
		t.Errorf("期望透传离线错误，实际: %v", err)
	}
}

func TestAttendanceService_CurrentView_RequiresClass(t *testing.T) {
	svc, _ := setupTestAttendanceService()
	if _, err := svc.CurrentView(context.Background(), sid); !errors.Is(err, ErrClassRequired) {
		t.Errorf("期望 ErrClassRequired，实际: %v", err)
	}
}

// ── 单元格切换 ──

func TestAttendanceService_ToggleCell_Cycle(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()
	if _, err := svc.SelectClass(ctx, sid, 7); err != nil {
		t.Fatalf("SelectClass 失败: %v", err)
	}

	text := ""
	want := []struct{ text, style string }{
		{"P", "present"}, {"A", "absent"}, {"H", "partial"}, {"", ""},
	}
	for i, w := range want {
		resp, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{StudentID: 3, Date: "1/2/2024", CurrentText: text})
		if err != nil {
			t.Fatalf("第 %d 次切换失败: %v", i+1, err)
		}
		if resp.Text != w.text || resp.StyleClass != w.style {
			t.Errorf("第 %d 次切换: 期望 (%q,%q)，实际 (%q,%q)", i+1, w.text, w.style, resp.Text, resp.StyleClass)
		}
		if resp.Date != "2024-01-02" {
			t.Errorf("日期应规范化: %q", resp.Date)
		}
		text = resp.Text
	}

	if len(d.attendance.upserts) != 4 {
		t.Fatalf("期望 4 次保存，实际 %d", len(d.attendance.upserts))
	}
	first := d.attendance.upserts[0]
	if first.ClassID != 7 || first.StudentID != 3 || first.Date != "2024-01-02" || first.Status != "P" {
		t.Errorf("保存请求错误: %+v", first)
	}
}

func TestAttendanceService_ToggleCell_UnknownTextBecomesPresent(t *testing.T) {
	svc, _ := setupTestAttendanceService()
	ctx := context.Background()
	_, _ = svc.SelectClass(ctx, sid, 7)

	resp, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{StudentID: 3, Date: "2024-01-02", CurrentText: " L "})
	if err != nil {
		t.Fatalf("ToggleCell 失败: %v", err)
	}
	if resp.Text != "P" {
		t.Errorf("未知文本应切换为出勤，实际 %q", resp.Text)
	}
}

func TestAttendanceService_ToggleCell_FailureKeepsCell(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()
	_, _ = svc.SelectClass(ctx, sid, 7)
	d.attendance.upsertErr = &repository.APIError{Op: "attendance.upsert", Status: 500}

	resp, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{StudentID: 3, Date: "2024-01-02", CurrentText: "P"})
	if resp != nil {
		t.Errorf("失败时不应返回新状态: %+v", resp)
	}
	var apiErr *repository.APIError
	if !errors.As(err, &apiErr) {
		t.Errorf("期望 APIError，实际: %v", err)
	}
}

func TestAttendanceService_ToggleCell_Validation(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()

	if _, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{StudentID: 3, Date: "2024-01-02"}); !errors.Is(err, ErrClassRequired) {
		t.Errorf("期望 ErrClassRequired，实际: %v", err)
	}
	_, _ = svc.SelectClass(ctx, sid, 7)
	if _, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{Date: "2024-01-02"}); !errors.Is(err, ErrStudentRequired) {
		t.Errorf("期望 ErrStudentRequired，实际: %v", err)
	}
	if _, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{StudentID: 3, Date: "2024-02-30"}); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("期望 ErrInvalidDate，实际: %v", err)
	}
	if len(d.attendance.upserts) != 0 {
		t.Error("校验失败时不应保存")
	}
}

func TestAttendanceService_ToggleCell_UsesDisplayedClass(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.attendance.matrix = class7Matrix()
	ctx := context.Background()
	if _, err := svc.SelectClass(ctx, sid, 7); err != nil {
		t.Fatalf("SelectClass 失败: %v", err)
	}

	// 切换到 8 班时加载失败，页面上仍是 7 班的表格
	d.attendance.matrixErr = &repository.APIError{Op: "matrix", Status: 500}
	if _, err := svc.SelectClass(ctx, sid, 8); err == nil {
		t.Fatal("期望加载失败")
	}
	d.attendance.matrixErr = nil

	if _, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{ClassID: 7, StudentID: 3, Date: "2024-01-02", CurrentText: "P"}); err != nil {
		t.Fatalf("ToggleCell 失败: %v", err)
	}
	if got := d.attendance.upserts[0].ClassID; got != 7 {
		t.Errorf("应写入单元格所在表格的班级 7，实际 %d", got)
	}

	// 未携带班级时使用会话中的班级
	if _, err := svc.ToggleCell(ctx, sid, &dto.ToggleCellRequest{StudentID: 3, Date: "2024-01-02"}); err != nil {
		t.Fatalf("ToggleCell 失败: %v", err)
	}
	if got := d.attendance.upserts[1].ClassID; got != 8 {
		t.Errorf("缺省时应使用会话班级 8，实际 %d", got)
	}
}

// ── 课表推导范围 ──

func TestAttendanceService_ResolveScheduleRange(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.attendance.schedule = &dto.ScheduleDatesResponse{
		Dates:    []string{"2024-03-04", "2024-02-05T00:00:00Z", "2024-02-12"},
		Schedule: "Mon 16:00",
	}
	ctx := context.Background()

	resp, view, err := svc.ResolveScheduleRange(ctx, sid, &dto.ResolveScheduleRequest{ClassID: 7})
	if err != nil {
		t.Fatalf("ResolveScheduleRange 失败: %v", err)
	}

	// 默认查询范围：今天往前 6 个月至今天
	q := d.attendance.scheduleCalls[0]
	if q.Start != "2023-09-15" || q.End != "2024-03-15" {
		t.Errorf("默认查询范围错误: %+v", q)
	}
	if resp.StartDate != "2024-02-05" || resp.EndDate != "2024-03-04" {
		t.Errorf("推导范围错误: %s ~ %s", resp.StartDate, resp.EndDate)
	}
	if view == nil || view.State.ClassID != 7 || view.State.Range.Start != "2024-02-05" {
		t.Errorf("应以新范围重新加载: %+v", view)
	}
	if len(d.attendance.matrixCalls) != 1 {
		t.Errorf("期望重新加载一次，实际 %d", len(d.attendance.matrixCalls))
	}
}

func TestAttendanceService_ResolveScheduleRange_ServerBounds(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.attendance.schedule = &dto.ScheduleDatesResponse{
		Dates:     []string{"2024-02-05"},
		StartDate: "2024-02-01",
		EndDate:   "2024-02-29",
	}

	resp, _, err := svc.ResolveScheduleRange(context.Background(), sid, &dto.ResolveScheduleRequest{
		ClassID: 7, StartDate: "2024-02-01", EndDate: "2024-02-29",
	})
	if err != nil {
		t.Fatalf("ResolveScheduleRange 失败: %v", err)
	}
	if resp.StartDate != "2024-02-01" || resp.EndDate != "2024-02-29" {
		t.Errorf("应使用服务端给出的边界: %s ~ %s", resp.StartDate, resp.EndDate)
	}
}

func TestAttendanceService_ResolveScheduleRange_Empty(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()
	if _, err := svc.SetRange(ctx, sid, &dto.SetRangeRequest{StartDate: "2024-01-01", EndDate: "2024-01-07"}); err != nil {
		t.Fatalf("SetRange 失败: %v", err)
	}

	_, view, err := svc.ResolveScheduleRange(ctx, sid, &dto.ResolveScheduleRequest{ClassID: 7})
	if !errors.Is(err, ErrScheduleNotFound) {
		t.Fatalf("期望 ErrScheduleNotFound，实际: %v", err)
	}
	if view != nil {
		t.Error("未找到课表时不应重新加载")
	}
	state, _ := svc.State(ctx, sid)
	if state.Range != (model.DateRange{Start: "2024-01-01", End: "2024-01-07"}) || state.ClassID != 0 {
		t.Errorf("范围应保持不变: %+v", state)
	}
	if len(d.attendance.matrixCalls) != 0 {
		t.Error("不应请求矩阵")
	}
}

func TestAttendanceService_ResolveScheduleRange_StaleReloadKeepsRange(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.attendance.schedule = &dto.ScheduleDatesResponse{Dates: []string{"2024-02-05", "2024-02-12"}}
	ctx := context.Background()

	d.attendance.beforeMatrix = func() {
		_, _ = d.repo.ViewState.NextLoadSeq(ctx, sid)
	}
	resp, view, err := svc.ResolveScheduleRange(ctx, sid, &dto.ResolveScheduleRequest{ClassID: 7})
	if !errors.Is(err, ErrStaleLoad) {
		t.Fatalf("期望 ErrStaleLoad，实际: %v", err)
	}
	if resp == nil || resp.StartDate != "2024-02-05" || resp.EndDate != "2024-02-12" {
		t.Errorf("范围已保存时仍应返回推导结果: %+v", resp)
	}
	if view != nil {
		t.Error("过期的重新加载不应返回表格")
	}
	state, _ := svc.State(ctx, sid)
	if state.Range != (model.DateRange{Start: "2024-02-05", End: "2024-02-12"}) {
		t.Errorf("新范围应已保存: %+v", state.Range)
	}
}

// ── 批量建表 ──

func TestAttendanceService_CreateSheet(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()
	_, _ = svc.SelectClass(ctx, sid, 7)
	loadsBefore := len(d.attendance.matrixCalls)

	for i := int64(1); i <= 5; i++ {
		d.students.roster[7] = append(d.students.roster[7], model.Student{ID: i, Category: model.CategoryRegular})
	}

	resp, view, err := svc.CreateSheet(ctx, sid, &dto.CreateSheetRequest{Date: "3/15/2024"})
	if err != nil {
		t.Fatalf("CreateSheet 失败: %v", err)
	}
	if got := d.attendance.upsertCount(); got != 5 {
		t.Errorf("期望 5 次保存，实际 %d", got)
	}
	for _, u := range d.attendance.upserts {
		if u.Status != "" || u.Date != "2024-03-15" || u.ClassID != 7 {
			t.Errorf("建表记录错误: %+v", u)
		}
	}
	if resp.Created != 5 || !resp.Reloaded || view == nil {
		t.Errorf("结果错误: %+v", resp)
	}
	if len(d.attendance.matrixCalls) != loadsBefore+1 {
		t.Error("当前班级建表后应重新加载")
	}
}

func TestAttendanceService_CreateSheet_OtherClassNoReload(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()
	_, _ = svc.SelectClass(ctx, sid, 7)
	loadsBefore := len(d.attendance.matrixCalls)
	d.students.roster[8] = []model.Student{{ID: 1}}

	resp, view, err := svc.CreateSheet(ctx, sid, &dto.CreateSheetRequest{ClassID: 8, Date: "2024-03-15"})
	if err != nil {
		t.Fatalf("CreateSheet 失败: %v", err)
	}
	if resp.Reloaded || view != nil || len(d.attendance.matrixCalls) != loadsBefore {
		t.Error("非当前班级建表不应重新加载")
	}
}

func TestAttendanceService_CreateSheet_EmptyRoster(t *testing.T) {
	svc, d := setupTestAttendanceService()

	_, _, err := svc.CreateSheet(context.Background(), sid, &dto.CreateSheetRequest{ClassID: 7, Date: "2024-03-15"})
	if !errors.Is(err, ErrEmptyRoster) {
		t.Errorf("期望 ErrEmptyRoster，实际: %v", err)
	}
	if d.attendance.upsertCount() != 0 {
		t.Error("空花名册不应保存")
	}
}

func TestAttendanceService_CreateSheet_UpsertFails(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.students.roster[7] = []model.Student{{ID: 1}, {ID: 2}}
	d.attendance.upsertErr = repository.ErrAPIOffline

	_, _, err := svc.CreateSheet(context.Background(), sid, &dto.CreateSheetRequest{ClassID: 7, Date: "2024-03-15"})
	if !errors.Is(err, repository.ErrAPIOffline) {
		t.Errorf("期望透传保存错误，实际: %v", err)
	}
}

// ── 移动记录 ──

func TestAttendanceService_MoveRecords(t *testing.T) {
	svc, d := setupTestAttendanceService()
	ctx := context.Background()
	_, _ = svc.SelectClass(ctx, sid, 7)

	resp, view, err := svc.MoveRecords(ctx, sid, &dto.MoveRecordsRequest{FromDate: "2024-01-02", ToDate: "1/9/2024"})
	if err != nil {
		t.Fatalf("MoveRecords 失败: %v", err)
	}
	if resp.Moved != 2 || view == nil {
		t.Errorf("结果错误: %+v", resp)
	}
	want := dto.MoveAttendanceRequest{ClassID: 7, FromDate: "2024-01-02", ToDate: "2024-01-09"}
	if len(d.attendance.moves) != 1 || d.attendance.moves[0] != want {
		t.Errorf("移动请求错误: %+v", d.attendance.moves)
	}
}

func TestAttendanceService_MoveRecords_SameDate(t *testing.T) {
	svc, d := setupTestAttendanceService()

	_, _, err := svc.MoveRecords(context.Background(), sid, &dto.MoveRecordsRequest{
		ClassID: 7, FromDate: "2024-01-02", ToDate: "1/2/2024",
	})
	if !errors.Is(err, ErrSameMoveDate) {
		t.Errorf("期望 ErrSameMoveDate，实际: %v", err)
	}
	if len(d.attendance.moves) != 0 || len(d.attendance.matrixCalls) != 0 {
		t.Error("相同日期不应发出任何请求")
	}
}

func TestAttendanceService_ListClasses(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.classes.classes = []model.ClassSection{{ID: 7, Name: "Kids A"}}

	classes, err := svc.ListClasses(context.Background())
	if err != nil || len(classes) != 1 || classes[0].Name != "Kids A" {
		t.Errorf("ListClasses 错误: %v, %+v", err, classes)
	}
}

// ── 一周矩阵 ──

func TestAttendanceService_WeekMatrix(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.attendance.matrix = &dto.MatrixResponse{
		Students: []model.Student{
			{ID: 3, Name: "Chie", Category: model.CategoryRegular},
			{ID: 4, Name: "Dan", Category: model.CategoryTrial},
		},
		Dates: []string{
			"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04",
			"2024-01-05", "2024-01-06", "2024-01-07",
		},
		Attendance: map[string]string{"3-2024-01-02": "P"},
	}
	ctx := context.Background()
	_, _ = svc.SelectClass(ctx, sid, 7)

	view, err := svc.SetRange(ctx, sid, &dto.SetRangeRequest{StartDate: "2024-01-01", EndDate: "2024-01-07"})
	if err != nil {
		t.Fatalf("SetRange 失败: %v", err)
	}
	grid := view.Grid
	if len(grid.Columns) != 7 || grid.CellCount() != 14 {
		t.Fatalf("期望 7 列 14 个单元格，实际 %d 列 %d 个", len(grid.Columns), grid.CellCount())
	}

	present := 0
	for _, sec := range grid.Sections {
		for _, row := range sec.Rows {
			for _, c := range row.Cells {
				if c.StudentID == 3 && c.Date == "2024-01-02" {
					if c.Text != "P" || c.StyleClass != "present" {
						t.Errorf("3 号学生 1 月 2 日应为出勤: %+v", c)
					}
					present++
					continue
				}
				if c.Text != "" || c.StyleClass != "" {
					t.Errorf("其余单元格应为未标记: %+v", c)
				}
			}
		}
	}
	if present != 1 {
		t.Errorf("期望 1 个出勤单元格，实际 %d", present)
	}
}

func TestAttendanceService_ViewOf(t *testing.T) {
	svc, d := setupTestAttendanceService()
	d.attendance.matrix = class7Matrix()
	ctx := context.Background()

	view, err := svc.ViewOf(ctx, &model.ViewState{ClassID: 7, Range: model.DateRange{Start: "2024-01-01"}})
	if err != nil {
		t.Fatalf("ViewOf 失败: %v", err)
	}
	if view.Grid == nil || view.State.ClassID != 7 {
		t.Errorf("视图错误: %+v", view)
	}
	if state, _ := svc.State(ctx, sid); state.HasClass() {
		t.Error("ViewOf 不应修改会话状态")
	}
	if _, err := svc.ViewOf(ctx, &model.ViewState{}); !errors.Is(err, ErrClassRequired) {
		t.Errorf("期望 ErrClassRequired，实际: %v", err)
	}
}
