package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"go-streamrip-bot/downloader"
)

// HistoryRecord is an archived job.
type HistoryRecord struct {
	ID               uint   `gorm:"primaryKey"`
	JobID            string `gorm:"size:16;index"`
	OwnerID          int64  `gorm:"index"`
	ChatID           int64
	Source           string
	Name             string
	Platform         string `gorm:"size:16"`
	MediaType        string `gorm:"size:16"`
	MediaID          string
	Mode             string `gorm:"size:8"`
	Codec            string `gorm:"size:8"`
	RequestedQuality int
	EffectiveQuality int
	State            string `gorm:"size:16;index"`
	Reason           string
	Note             string
	Files            int
	Bytes            int64
	CreatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       time.Time `gorm:"index"`
}

// UserSettings persists the /settings overrides of one user.
type UserSettings struct {
	OwnerID   int64 `gorm:"primaryKey;autoIncrement:false"`
	Quality   *int
	Codec     string `gorm:"size:8"`
	Mode      string `gorm:"size:8"`
	UpdatedAt time.Time
}

// HistoryStore archives jobs and settings in SQLite.
type HistoryStore struct {
	db *gorm.DB
}

// OpenHistory opens (and migrates) the database at path.
func OpenHistory(path string) (*HistoryStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.AutoMigrate(&HistoryRecord{}, &UserSettings{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close closes the underlying connection.
func (h *HistoryStore) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Archive stores a retired job.
func (h *HistoryStore) Archive(ctx context.Context, job Snapshot) error {
	record := HistoryRecord{
		JobID:            job.ID,
		OwnerID:          job.OwnerID,
		ChatID:           job.ChatID,
		Source:           job.Source,
		Name:             job.Name,
		Platform:         job.Descriptor.Platform,
		MediaType:        string(job.Descriptor.Type),
		MediaID:          job.Descriptor.ID,
		Mode:             string(job.Mode),
		Codec:            string(job.Codec),
		RequestedQuality: int(job.RequestedQuality),
		EffectiveQuality: int(job.EffectiveQuality),
		State:            job.State.String(),
		Reason:           job.Reason,
		Note:             job.Note,
		Files:            job.Files,
		Bytes:            job.Bytes,
		CreatedAt:        job.CreatedAt,
		FinishedAt:       job.FinishedAt,
	}
	if !job.StartedAt.IsZero() {
		started := job.StartedAt
		record.StartedAt = &started
	}
	return h.db.WithContext(ctx).Create(&record).Error
}

// Recent returns the owner's latest archived jobs, newest first.
func (h *HistoryStore) Recent(ctx context.Context, ownerID int64, limit int) ([]HistoryRecord, error) {
	var records []HistoryRecord
	err := h.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("finished_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// LoadSettings returns the stored overrides, or empty settings.
func (h *HistoryStore) LoadSettings(ctx context.Context, ownerID int64) (Settings, error) {
	var rows []UserSettings
	if err := h.db.WithContext(ctx).Where("owner_id = ?", ownerID).Limit(1).Find(&rows).Error; err != nil {
		return Settings{}, err
	}
	if len(rows) == 0 {
		return Settings{}, nil
	}

	row := rows[0]
	settings := Settings{Codec: downloader.Codec(row.Codec), Mode: Mode(row.Mode)}
	if row.Quality != nil {
		q := downloader.Quality(*row.Quality)
		settings.Quality = &q
	}
	return settings, nil
}

// SaveSettings upserts the owner's overrides.
func (h *HistoryStore) SaveSettings(ctx context.Context, ownerID int64, settings Settings) error {
	row := UserSettings{
		OwnerID: ownerID,
		Codec:   string(settings.Codec),
		Mode:    string(settings.Mode),
	}
	if settings.Quality != nil {
		q := int(*settings.Quality)
		row.Quality = &q
	}
	return h.db.WithContext(ctx).Save(&row).Error
}
