package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/himanishpuri/NeuroMotion/pkg/models"
)

const DefaultDBFile = "neuromotion.sqlite3"
const errDBClientNil = "db client is nil"

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Job is one completed unit of work. Stage and Key together are unique.
type Job struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Stage       string    `gorm:"uniqueIndex:idx_job_unique,priority:1;index:idx_job_stage" json:"stage"`
	Key         string    `gorm:"column:job_key;uniqueIndex:idx_job_unique,priority:2" json:"key"`
	Outputs     string    `json:"outputs"` // newline separated
	CompletedAt time.Time `json:"completed_at"`
}

// OutputList splits Outputs.
func (j Job) OutputList() []string {
	if j.Outputs == "" {
		return nil
	}
	return strings.Split(j.Outputs, "\n")
}

// EvaluationRun groups the rows of one evaluation pass.
type EvaluationRun struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ResultsCSV string    `json:"results_csv"`
	Subjects   string    `json:"subjects"`
	Segments   int       `json:"segments"`
	CreatedAt  time.Time `json:"created_at"`
}

// SegmentResult is one MetricsRecord. NaN correlations are stored as NULL.
type SegmentResult struct {
	ID         uint     `gorm:"primaryKey;autoIncrement" json:"-"`
	RunID      string   `gorm:"type:varchar(36);index:idx_result_run" json:"run_id"`
	Segment    string   `gorm:"index:idx_result_segment" json:"segment"`
	MSEFMRI    *float64 `json:"mse_fmri"`
	MSEFusion  *float64 `json:"mse_fusion"`
	CorrFMRI   *float64 `json:"corr_fmri"`
	CorrFusion *float64 `json:"corr_fusion"`
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("NEUROMOTION_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Job{}, &EvaluationRun{}, &SegmentResult{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CompleteJob records (stage, key) as done, replacing any earlier record.
func (c *DBClient) CompleteJob(stage, key string, outputs []string, at time.Time) (*Job, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	job := Job{
		ID:          uuid.NewString(),
		Stage:       stage,
		Key:         key,
		Outputs:     strings.Join(outputs, "\n"),
		CompletedAt: at.UTC(),
	}
	err := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stage"}, {Name: "job_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"outputs", "completed_at"}),
	}).Create(&job).Error
	if err != nil {
		return nil, fmt.Errorf("recording job %s/%s: %w", stage, key, err)
	}
	return c.GetJob(stage, key)
}

// GetJob returns gorm.ErrRecordNotFound when the job was never completed.
func (c *DBClient) GetJob(stage, key string) (*Job, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var job Job
	if err := c.DB.Where("stage = ? AND job_key = ?", stage, key).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns completed jobs ordered by key. An empty stage lists all.
func (c *DBClient) ListJobs(stage string) ([]Job, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Order("stage").Order("job_key")
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	var jobs []Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return jobs, nil
}

func (c *DBClient) DeleteJob(stage, key string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Where("stage = ? AND job_key = ?", stage, key).Delete(&Job{}).Error
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func valueOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// SaveResults stores one evaluation pass and returns its run id.
func (c *DBClient) SaveResults(csvPath string, subjects []string, records []models.MetricsRecord) (string, error) {
	if c == nil || c.DB == nil {
		return "", errors.New(errDBClientNil)
	}
	run := EvaluationRun{
		ID:         uuid.NewString(),
		ResultsCSV: csvPath,
		Subjects:   strings.Join(subjects, ","),
		Segments:   len(records),
	}
	err := c.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		rows := make([]SegmentResult, 0, len(records))
		for _, r := range records {
			rows = append(rows, SegmentResult{
				RunID:      run.ID,
				Segment:    r.Segment,
				MSEFMRI:    nullable(r.MSEFMRI),
				MSEFusion:  nullable(r.MSEFusion),
				CorrFMRI:   nullable(r.CorrFMRI),
				CorrFusion: nullable(r.CorrFusion),
			})
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return "", fmt.Errorf("saving results: %w", err)
	}
	return run.ID, nil
}

// LatestRun returns the most recent evaluation pass and its records.
// It returns gorm.ErrRecordNotFound when nothing has been evaluated.
func (c *DBClient) LatestRun() (*EvaluationRun, []models.MetricsRecord, error) {
	if c == nil || c.DB == nil {
		return nil, nil, errors.New(errDBClientNil)
	}
	var run EvaluationRun
	if err := c.DB.Order("created_at desc").First(&run).Error; err != nil {
		return nil, nil, err
	}
	recs, err := c.Results(run.ID)
	if err != nil {
		return nil, nil, err
	}
	return &run, recs, nil
}

func (c *DBClient) Results(runID string) ([]models.MetricsRecord, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rows []SegmentResult
	if err := c.DB.Where("run_id = ?", runID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	out := make([]models.MetricsRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.MetricsRecord{
			Segment:    r.Segment,
			MSEFMRI:    valueOrNaN(r.MSEFMRI),
			MSEFusion:  valueOrNaN(r.MSEFusion),
			CorrFMRI:   valueOrNaN(r.CorrFMRI),
			CorrFusion: valueOrNaN(r.CorrFusion),
		})
	}
	return out, nil
}

// Stats summarizes table sizes for the status API.
type Stats struct {
	Jobs     int64            `json:"jobs"`
	JobsBy   map[string]int64 `json:"jobs_by_stage"`
	Runs     int64            `json:"evaluation_runs"`
	Segments int64            `json:"result_rows"`
}

func (c *DBClient) Stats() (*Stats, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	s := &Stats{JobsBy: map[string]int64{}}
	if err := c.DB.Model(&Job{}).Count(&s.Jobs).Error; err != nil {
		return nil, err
	}
	var groups []struct {
		Stage string
		N     int64
	}
	if err := c.DB.Model(&Job{}).Select("stage, count(*) as n").Group("stage").Scan(&groups).Error; err != nil {
		return nil, err
	}
	for _, g := range groups {
		s.JobsBy[g.Stage] = g.N
	}
	if err := c.DB.Model(&EvaluationRun{}).Count(&s.Runs).Error; err != nil {
		return nil, err
	}
	if err := c.DB.Model(&SegmentResult{}).Count(&s.Segments).Error; err != nil {
		return nil, err
	}
	return s, nil
}
