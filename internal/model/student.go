package model

// 学生类别
const (
	CategoryRegular = "regular"
	CategoryTrial   = "trial"
)

// Student 学生（由管理模块维护，出勤矩阵只读）
type Student struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Color    string `json:"color_code,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	ClassID  *int64 `json:"class_id,omitempty"`
}

// IsRegular 是否为正式学生；其余类别均按试听/补课分组
func (s Student) IsRegular() bool {
	return s.Category == CategoryRegular
}

// ClassSection 班级
type ClassSection struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TeacherID   *int64 `json:"teacher_id,omitempty"`
	TeacherName string `json:"teacher_name,omitempty"`
	Schedule    string `json:"schedule,omitempty"` // 自由文本，如 "Mon/Wed 16:00"
	Color       string `json:"color,omitempty"`
}
