package audit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PatchRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Room      string `gorm:"size:40;index"`
	Version   int
	Client    string `gorm:"size:64"`
	Action    string `gorm:"size:32"`
	Detail    string
	CreatedAt time.Time
}

// Store writes the trail to postgres through gorm.
type Store struct {
	db *gorm.DB
}

func OpenStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection and makes sure the table exists.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&PatchRecord{}); err != nil {
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	rec := PatchRecord{
		Room:      e.Room,
		Version:   e.Version,
		Client:    e.Client,
		Action:    string(e.Action),
		Detail:    e.Detail,
		CreatedAt: e.At,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Store) History(ctx context.Context, room string, limit int) ([]Entry, error) {
	var recs []PatchRecord
	err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, Entry{
			Room:    r.Room,
			Version: r.Version,
			Client:  r.Client,
			Action:  Action(r.Action),
			Detail:  r.Detail,
			At:      r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
