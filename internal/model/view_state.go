package model

// ViewState 出勤视图控制器的显式状态（每个浏览器会话一份）
type ViewState struct {
	ClassID int64     `json:"class_id"`
	Range   DateRange `json:"range"`
}

// HasClass 是否已选择班级
func (v *ViewState) HasClass() bool {
	return v != nil && v.ClassID > 0
}
