package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
	"github.com/stupidgiraffe/Vitamin-English-sub001/pkg/dateutil"
)

// ── 出勤矩阵渲染模型 ──────────────────────────────────────
//
// 职责：把学生列表、日期列表和稀疏的出勤记录转换为稠密的表格结构。
//
//   - 学生按类别分为"正式"与"试听/补课"两组，组内保持服务端顺序，正式组在前
//   - 空分组不输出标题行也不输出数据行
//   - 每个 (学生, 日期) 都有单元格，没有记录时为未标记
//   - 日期列表为空时补一个"今天"列，保证用户有可点击的单元格
//   - 查找键中的日期两侧都先规范化，服务端返回非规范日期时记录仍能对上
// ─────────────────────────────────────────────────────────────

// 分组标识
const (
	SectionRegular = "regular"
	SectionTrial   = "trial"
)

const studentHeader = "Student"

var sectionTitles = map[string]string{
	SectionRegular: "Regular Students",
	SectionTrial:   "Trial / Make-up Students",
}

// GridColumn 日期列
type GridColumn struct {
	Raw   string // 服务端原始值
	Date  string // 规范日期；无法规范时与 Raw 相同
	Label string // 列头文本，如 "Jan 5"；无法解析时为 Raw
}

// GridCell 单元格
type GridCell struct {
	StudentID  int64
	Date       string
	Text       string
	StyleClass string
}

// GridRow 学生行
type GridRow struct {
	Student model.Student
	Cells   []GridCell
}

// GridSection 学生分组
type GridSection struct {
	Key   string
	Title string
	Rows  []GridRow
}

// RenderableGrid 可直接渲染的出勤矩阵
type RenderableGrid struct {
	Columns  []GridColumn
	Sections []GridSection
	// Synthetic 为 true 表示日期列表为空，唯一的列是补充的当天日期
	Synthetic bool
}

// CellCount 单元格总数（学生数 × 日期数）
func (g *RenderableGrid) CellCount() int {
	n := 0
	for _, sec := range g.Sections {
		for _, row := range sec.Rows {
			n += len(row.Cells)
		}
	}
	return n
}

// StudentCount 学生总数
func (g *RenderableGrid) StudentCount() int {
	n := 0
	for _, sec := range g.Sections {
		n += len(sec.Rows)
	}
	return n
}

// Cell 按学生与规范日期查找单元格
func (g *RenderableGrid) Cell(studentID int64, date string) (GridCell, bool) {
	for _, sec := range g.Sections {
		for _, row := range sec.Rows {
			if row.Student.ID != studentID {
				continue
			}
			for _, c := range row.Cells {
				if c.Date == date {
					return c, true
				}
			}
		}
	}
	return GridCell{}, false
}

// VisibleRows 按页面显示顺序返回每一行的可见文本：
// 表头、分组标题行（单格）、学生行
func (g *RenderableGrid) VisibleRows() [][]string {
	header := make([]string, 0, len(g.Columns)+1)
	header = append(header, studentHeader)
	for _, col := range g.Columns {
		header = append(header, col.Label)
	}
	rows := [][]string{header}

	for _, sec := range g.Sections {
		rows = append(rows, []string{sec.Title})
		for _, row := range sec.Rows {
			line := make([]string, 0, len(row.Cells)+1)
			line = append(line, row.Student.Name)
			for _, c := range row.Cells {
				line = append(line, c.Text)
			}
			rows = append(rows, line)
		}
	}
	return rows
}

// BuildGrid 构建出勤矩阵
// 重复的 (学生, 日期) 记录以后出现的为准
func BuildGrid(students []model.Student, dates []string, records []model.AttendanceRecord, today time.Time) *RenderableGrid {
	grid := &RenderableGrid{Columns: buildColumns(dates)}
	if len(grid.Columns) == 0 {
		d := dateutil.FormatLocal(today)
		grid.Columns = []GridColumn{{Raw: d, Date: d, Label: dateutil.Label(d)}}
		grid.Synthetic = true
	}

	lookup := make(map[string]model.AttendanceStatus, len(records))
	for _, r := range records {
		lookup[cellKey(r.StudentID, canonicalOrRaw(r.Date))] = r.Status
	}

	var regular, other []model.Student
	for _, s := range students {
		if s.IsRegular() {
			regular = append(regular, s)
		} else {
			other = append(other, s)
		}
	}

	if len(regular) > 0 {
		grid.Sections = append(grid.Sections, buildSection(SectionRegular, regular, grid.Columns, lookup))
	}
	if len(other) > 0 {
		grid.Sections = append(grid.Sections, buildSection(SectionTrial, other, grid.Columns, lookup))
	}
	return grid
}

func buildSection(key string, students []model.Student, columns []GridColumn, lookup map[string]model.AttendanceStatus) GridSection {
	sec := GridSection{Key: key, Title: sectionTitles[key], Rows: make([]GridRow, 0, len(students))}
	for _, s := range students {
		row := GridRow{Student: s, Cells: make([]GridCell, 0, len(columns))}
		for _, col := range columns {
			status := lookup[cellKey(s.ID, col.Date)]
			row.Cells = append(row.Cells, GridCell{
				StudentID:  s.ID,
				Date:       col.Date,
				Text:       string(status),
				StyleClass: status.StyleClass(),
			})
		}
		sec.Rows = append(sec.Rows, row)
	}
	return sec
}

// buildColumns 去重并按时间顺序排列日期列；无法解析的日期保持原顺序排在最后
func buildColumns(dates []string) []GridColumn {
	var parsed, unparsed []GridColumn
	seen := make(map[string]bool, len(dates))
	for _, raw := range dates {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		canonical, ok := dateutil.NormalizeString(raw)
		key := canonical
		if !ok {
			key = raw
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		col := GridColumn{Raw: raw, Date: key, Label: dateutil.Label(raw)}
		if ok {
			parsed = append(parsed, col)
		} else {
			unparsed = append(unparsed, col)
		}
	}
	sort.SliceStable(parsed, func(i, j int) bool { return parsed[i].Date < parsed[j].Date })
	return append(parsed, unparsed...)
}

// RecordsFromMatrix 将 API 返回的 {"<studentId>-<date>": status} 转为记录列表
// 返回无法解析的 key 数量，由调用方记录日志
func RecordsFromMatrix(classID int64, attendance map[string]string) ([]model.AttendanceRecord, int) {
	keys := make([]string, 0, len(attendance))
	for k := range attendance {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]model.AttendanceRecord, 0, len(keys))
	skipped := 0
	for _, k := range keys {
		idx := strings.Index(k, "-")
		if idx <= 0 || idx == len(k)-1 {
			skipped++
			continue
		}
		id, err := strconv.ParseInt(k[:idx], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, model.AttendanceRecord{
			StudentID: id,
			ClassID:   classID,
			Date:      k[idx+1:],
			Status:    model.AttendanceStatus(attendance[k]),
		})
	}
	return records, skipped
}

func cellKey(studentID int64, date string) string {
	return fmt.Sprintf("%d-%s", studentID, date)
}

func canonicalOrRaw(raw string) string {
	if d, ok := dateutil.NormalizeString(raw); ok {
		return d
	}
	return raw
}
