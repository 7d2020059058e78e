package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// CheckpointRecord is the database row backing a checkpoint. State and
// metadata are stored as JSON blobs so the schema stays stable as the
// checkpoint payload evolves.
type CheckpointRecord struct {
	ID           uint   `gorm:"primaryKey"`
	CheckpointID string `gorm:"size:64;uniqueIndex"`
	ThreadID     string `gorm:"size:128;index:idx_thread_version,unique,priority:1"`
	Version      int    `gorm:"index:idx_thread_version,unique,priority:2"`
	Workflow     string `gorm:"size:255"`
	NodeID       string `gorm:"size:255"`
	Label        string `gorm:"size:255"`
	Payload      []byte `gorm:"type:blob"`
	CreatedAt    time.Time
}

// TableName keeps the table name explicit.
func (CheckpointRecord) TableName() string {
	return "workflow_checkpoints"
}

// GormCheckpointStore persists checkpoints in a relational database.
type GormCheckpointStore struct {
	db *gorm.DB
}

// NewGormCheckpointStore wraps an open gorm handle and migrates the
// checkpoint table.
func NewGormCheckpointStore(db *gorm.DB) (*GormCheckpointStore, error) {
	if err := db.AutoMigrate(&CheckpointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate checkpoint table: %w", err)
	}
	return &GormCheckpointStore{db: db}, nil
}

// OpenCheckpointDatabase opens a database by driver name (postgres, mysql,
// sqlite) and returns a store over it.
func OpenCheckpointDatabase(driver, dsn string) (*GormCheckpointStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return NewGormCheckpointStore(db)
}

func (s *GormCheckpointStore) Save(cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return fmt.Errorf("checkpoint missing thread ID")
	}

	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	record := CheckpointRecord{
		CheckpointID: cp.ID,
		ThreadID:     cp.ThreadID,
		Version:      cp.Version,
		Workflow:     cp.Workflow,
		NodeID:       cp.NodeID,
		Label:        cp.Label,
		Payload:      payload,
		CreatedAt:    cp.CreatedAt,
	}

	// Re-saving the same checkpoint (rollback relabeling) replaces its row;
	// a different checkpoint on the same thread+version conflicts so the
	// manager can retry with the next version.
	var existing CheckpointRecord
	err = s.db.Where("thread_id = ? AND version = ?", cp.ThreadID, cp.Version).First(&existing).Error
	switch {
	case err == nil:
		if existing.CheckpointID != cp.ID {
			return fmt.Errorf("thread %s version %d: %w", cp.ThreadID, cp.Version, ErrVersionConflict)
		}
		record.ID = existing.ID
		return s.db.Save(&record).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		if createErr := s.db.Create(&record).Error; createErr != nil {
			// The unique thread+version index may have rejected a racing
			// insert; surface that as a conflict.
			var raced CheckpointRecord
			if s.db.Where("thread_id = ? AND version = ?", cp.ThreadID, cp.Version).First(&raced).Error == nil &&
				raced.CheckpointID != cp.ID {
				return fmt.Errorf("thread %s version %d: %w", cp.ThreadID, cp.Version, ErrVersionConflict)
			}
			return fmt.Errorf("failed to save checkpoint: %w", createErr)
		}
		return nil
	default:
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
}

func (s *GormCheckpointStore) Get(threadID string, version int) (*Checkpoint, error) {
	var record CheckpointRecord
	err := s.db.Where("thread_id = ? AND version = ?", threadID, version).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeRecord(&record)
}

func (s *GormCheckpointStore) Latest(threadID string) (*Checkpoint, error) {
	var record CheckpointRecord
	err := s.db.Where("thread_id = ?", threadID).Order("version DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no checkpoints for thread %s", threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decodeRecord(&record)
}

func (s *GormCheckpointStore) List(threadID string) ([]*Checkpoint, error) {
	var records []CheckpointRecord
	err := s.db.Where("thread_id = ?", threadID).Order("version ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	cps := make([]*Checkpoint, 0, len(records))
	for i := range records {
		cp, err := decodeRecord(&records[i])
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

func (s *GormCheckpointStore) Delete(threadID string, version int) error {
	result := s.db.Where("thread_id = ? AND version = ?", threadID, version).Delete(&CheckpointRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("checkpoint not found: thread=%s version=%d", threadID, version)
	}
	return nil
}

func (s *GormCheckpointStore) DeleteThread(threadID string) error {
	result := s.db.Where("thread_id = ?", threadID).Delete(&CheckpointRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete thread checkpoints: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no checkpoints for thread %s", threadID)
	}
	return nil
}

func decodeRecord(record *CheckpointRecord) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(record.Payload, &cp); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", record.CheckpointID, err)
	}
	return &cp, nil
}
