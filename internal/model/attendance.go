package model

import "strings"

// AttendanceStatus 出勤状态标记（单元格中显示的短文本）
type AttendanceStatus string

const (
	StatusUnset   AttendanceStatus = ""
	StatusPresent AttendanceStatus = "P"
	StatusAbsent  AttendanceStatus = "A"
	StatusPartial AttendanceStatus = "H"
)

// statusCycle 单元格点击的循环顺序：未标记 → 出勤 → 缺勤 → 部分出勤 → 未标记
var statusCycle = []AttendanceStatus{StatusUnset, StatusPresent, StatusAbsent, StatusPartial}

// ParseDisplayedStatus 将单元格当前显示文本（去除首尾空白）解析为状态
// 无法识别的文本视为未标记
func ParseDisplayedStatus(text string) AttendanceStatus {
	s := AttendanceStatus(strings.TrimSpace(text))
	if s.Known() {
		return s
	}
	return StatusUnset
}

// Known 是否为已定义的状态
func (s AttendanceStatus) Known() bool {
	for _, c := range statusCycle {
		if s == c {
			return true
		}
	}
	return false
}

// Next 计算循环中的下一个状态；循环无终止态
func (s AttendanceStatus) Next() AttendanceStatus {
	for i, c := range statusCycle {
		if s == c {
			return statusCycle[(i+1)%len(statusCycle)]
		}
	}
	return StatusPresent
}

// StyleClass 状态对应的单元格样式；未标记与未知状态无样式
func (s AttendanceStatus) StyleClass() string {
	switch s {
	case StatusPresent:
		return "present"
	case StatusAbsent:
		return "absent"
	case StatusPartial:
		return "partial"
	default:
		return ""
	}
}

// AttendanceRecord 单条出勤记录，(StudentID, ClassID, Date) 唯一
type AttendanceRecord struct {
	StudentID int64            `json:"student_id"`
	ClassID   int64            `json:"class_id"`
	Date      string           `json:"date"` // YYYY-MM-DD
	Status    AttendanceStatus `json:"status"`
	Notes     string           `json:"notes,omitempty"`
}

// DateRange 日期范围；两端都为空表示"所有有记录的日期"
type DateRange struct {
	Start string `json:"start_date,omitempty"`
	End   string `json:"end_date,omitempty"`
}

// IsZero 两端均未设置
func (r DateRange) IsZero() bool {
	return r.Start == "" && r.End == ""
}
