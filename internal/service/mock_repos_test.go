package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stupidgiraffe/Vitamin-English-sub001/config"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/dto"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/model"
	"github.com/stupidgiraffe/Vitamin-English-sub001/internal/repository"
)

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct {
	mu sync.Mutex

	matrix      *dto.MatrixResponse
	matrixErr   error
	matrixCalls []model.DateRange
	// beforeMatrix 在返回矩阵前调用，用于模拟并发加载
	beforeMatrix func()

	upserts   []dto.UpsertAttendanceRequest
	upsertErr error

	schedule      *dto.ScheduleDatesResponse
	scheduleErr   error
	scheduleCalls []model.DateRange

	moves   []dto.MoveAttendanceRequest
	moveErr error
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{
		matrix:   &dto.MatrixResponse{Attendance: map[string]string{}},
		schedule: &dto.ScheduleDatesResponse{},
	}
}

func (m *mockAttendanceRepo) GetMatrix(_ context.Context, _ int64, r model.DateRange) (*dto.MatrixResponse, error) {
	m.mu.Lock()
	m.matrixCalls = append(m.matrixCalls, r)
	hook := m.beforeMatrix
	m.beforeMatrix = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if m.matrixErr != nil {
		return nil, m.matrixErr
	}
	return m.matrix, nil
}

func (m *mockAttendanceRepo) Upsert(_ context.Context, req *dto.UpsertAttendanceRequest) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.upserts = append(m.upserts, *req)
	return &model.AttendanceRecord{
		StudentID: req.StudentID,
		ClassID:   req.ClassID,
		Date:      req.Date,
		Status:    model.AttendanceStatus(req.Status),
	}, nil
}

func (m *mockAttendanceRepo) ScheduleDates(_ context.Context, _ int64, r model.DateRange) (*dto.ScheduleDatesResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleCalls = append(m.scheduleCalls, r)
	if m.scheduleErr != nil {
		return nil, m.scheduleErr
	}
	return m.schedule, nil
}

func (m *mockAttendanceRepo) Move(_ context.Context, req *dto.MoveAttendanceRequest) (*dto.MoveAttendanceResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.moveErr != nil {
		return nil, m.moveErr
	}
	m.moves = append(m.moves, *req)
	return &dto.MoveAttendanceResponse{Moved: 2}, nil
}

func (m *mockAttendanceRepo) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserts)
}

// ── Mock StudentRepository ──

type mockStudentRepo struct {
	roster map[int64][]model.Student
	err    error
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{roster: make(map[int64][]model.Student)}
}

func (m *mockStudentRepo) ListByClass(_ context.Context, classID int64) ([]model.Student, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.roster[classID], nil
}

// ── Mock ClassRepository ──

type mockClassRepo struct {
	classes []model.ClassSection
}

func (m *mockClassRepo) List(_ context.Context) ([]model.ClassSection, error) {
	return m.classes, nil
}

func (m *mockClassRepo) GetByID(_ context.Context, id int64) (*model.ClassSection, error) {
	for i := range m.classes {
		if m.classes[i].ID == id {
			return &m.classes[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

// ── 测试装配 ──

type testDeps struct {
	attendance *mockAttendanceRepo
	students   *mockStudentRepo
	classes    *mockClassRepo
	repo       *repository.Repository
}

func newTestDeps() *testDeps {
	d := &testDeps{
		attendance: newMockAttendanceRepo(),
		students:   newMockStudentRepo(),
		classes:    &mockClassRepo{},
	}
	d.repo = &repository.Repository{
		Attendance: d.attendance,
		Student:    d.students,
		Class:      d.classes,
		ViewState:  repository.NewMemoryViewStateRepo(time.Hour),
	}
	return d
}

// fixedClock 2024-03-15 10:00 本地时间
func fixedClock() time.Time {
	return time.Date(2024, 3, 15, 10, 0, 0, 0, time.Local)
}

func setupTestAttendanceService(hooks ...PostRenderHook) (*attendanceService, *testDeps) {
	d := newTestDeps()
	svc := NewAttendanceService(&config.AttendanceConfig{SheetConcurrency: 2, DefaultLookbackMonths: 6},
		d.repo, nil, zap.NewNop(), hooks...).(*attendanceService)
	svc.clock = fixedClock
	return svc, d
}
