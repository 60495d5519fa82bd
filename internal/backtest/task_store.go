package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"backview/internal/timerange"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// taskModel 是 Task 的落库形态，参数快照与校验结论存 JSON 列。
type taskModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	Exchange    string `gorm:"size:32"`
	Symbol      string `gorm:"size:32;index"`
	Timeframe   string `gorm:"size:8"`
	StartTS     int64
	EndTS       int64
	Status      string `gorm:"size:16;index"`
	Expected    int64
	Fetched     int64
	Message     string
	Params      datatypes.JSON
	Verdict     datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

func (taskModel) TableName() string { return "backtest_tasks" }

// TaskStore 用 GORM+SQLite 持久化任务，进程重启后任务历史仍可见。
type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(path string) (*TaskStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("task store 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("打开 task store 失败: %w", err)
	}
	if err := db.AutoMigrate(&taskModel{}); err != nil {
		return nil, fmt.Errorf("task store 迁移失败: %w", err)
	}
	return &TaskStore{db: db}, nil
}

func (s *TaskStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save 插入或整行更新任务。
func (s *TaskStore) Save(ctx context.Context, task Task, params FetchParams) error {
	m, err := toModel(task, params)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&m).Error
}

// Get 按 ID 读取任务。
func (s *TaskStore) Get(ctx context.Context, id string) (Task, bool, error) {
	var m taskModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}
	t, err := fromModel(m)
	return t, err == nil, err
}

// List 按创建时间倒序列出任务。
func (s *TaskStore) List(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var models []taskModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(models))
	for _, m := range models {
		t, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func toModel(task Task, params FetchParams) (taskModel, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return taskModel{}, err
	}
	verdictJSON, err := json.Marshal(task.Verdict)
	if err != nil {
		return taskModel{}, err
	}
	m := taskModel{
		ID:        task.ID,
		Exchange:  task.Exchange,
		Symbol:    task.Symbol,
		Timeframe: task.Timeframe,
		StartTS:   task.StartTS,
		EndTS:     task.EndTS,
		Status:    task.Status,
		Expected:  task.Expected,
		Fetched:   task.Fetched,
		Message:   task.Message,
		Params:    datatypes.JSON(paramsJSON),
		Verdict:   datatypes.JSON(verdictJSON),
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
	if !task.CompletedAt.IsZero() {
		completed := task.CompletedAt
		m.CompletedAt = &completed
	}
	return m, nil
}

func fromModel(m taskModel) (Task, error) {
	t := Task{
		ID:        m.ID,
		Exchange:  m.Exchange,
		Symbol:    m.Symbol,
		Timeframe: m.Timeframe,
		StartTS:   m.StartTS,
		EndTS:     m.EndTS,
		Status:    m.Status,
		Expected:  m.Expected,
		Fetched:   m.Fetched,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.CompletedAt != nil {
		t.CompletedAt = *m.CompletedAt
	}
	if len(m.Verdict) > 0 {
		var v timerange.Verdict
		if err := json.Unmarshal(m.Verdict, &v); err != nil {
			return Task{}, err
		}
		t.Verdict = v
	}
	return t, nil
}
