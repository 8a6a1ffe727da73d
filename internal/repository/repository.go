package repository

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Attendance AttendanceRepository
	Student    StudentRepository
	Class      ClassRepository
	ViewState  ViewStateRepository
}

// NewRepository 创建 Repository 聚合
// 业务数据全部来自学校 API；视图状态由调用方决定使用 Redis 还是进程内存储
func NewRepository(api *APIClient, views ViewStateRepository) *Repository {
	return &Repository{
		Attendance: NewAttendanceRepo(api),
		Student:    NewStudentRepo(api),
		Class:      NewClassRepo(api),
		ViewState:  views,
	}
}
