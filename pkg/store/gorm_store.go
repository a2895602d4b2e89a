package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"craftai/pkg/domain"
)

const migrateLockID int64 = 52415241

// GormStore implements Ledger using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race each other at startup.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&CreationModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// AppendCreation inserts one ledger record. The record is durable when this
// returns nil; callers must not charge quota before then.
func (s *GormStore) AppendCreation(creation domain.Creation) error {
	model := creationToModel(creation)
	if err := s.db.Create(&model).Error; err != nil {
		return fmt.Errorf("append creation: %w", err)
	}
	return nil
}

// ListCreationsByUser returns the user's generations, newest first.
func (s *GormStore) ListCreationsByUser(userID string, limit int) ([]domain.Creation, error) {
	return s.listCreations(limit, "user_id = ?", userID)
}

// ListPublished returns published creations, newest first.
func (s *GormStore) ListPublished(limit int) ([]domain.Creation, error) {
	return s.listCreations(limit, "publish = ?", true)
}

func (s *GormStore) listCreations(limit int, conds ...any) ([]domain.Creation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []CreationModel
	tx := s.db.Order("created_at DESC").Limit(limit)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list creations: %w", err)
	}
	res := make([]domain.Creation, 0, len(models))
	for _, m := range models {
		res = append(res, creationFromModel(m))
	}
	return res, nil
}

func creationToModel(c domain.Creation) CreationModel {
	meta, _ := json.Marshal(map[string]string{"capability": string(c.Type)})
	return CreationModel{
		ID:        c.ID,
		UserID:    c.UserID,
		Prompt:    c.Prompt,
		Content:   c.Content,
		Type:      string(c.Type),
		Publish:   c.Publish,
		Metadata:  meta,
		CreatedAt: c.CreatedAt,
	}
}

func creationFromModel(m CreationModel) domain.Creation {
	return domain.Creation{
		ID:        m.ID,
		UserID:    m.UserID,
		Prompt:    m.Prompt,
		Content:   m.Content,
		Type:      domain.Capability(m.Type),
		Publish:   m.Publish,
		CreatedAt: m.CreatedAt,
	}
}
