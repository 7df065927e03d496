package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"petition-gateway/petition/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

// signatureRow é o modelo gorm da tabela signatures.
// Seq desempata registros com o mesmo submitted_at.
type signatureRow struct {
	Seq         uint64    `gorm:"primaryKey;autoIncrement"`
	ID          string    `gorm:"size:36;not null;uniqueIndex"`
	Email       string    `gorm:"size:254;not null;uniqueIndex"`
	Name        string    `gorm:"size:800;not null"`
	City        string    `gorm:"size:800;not null"`
	Region      string    `gorm:"size:8;not null;index"`
	Role        string    `gorm:"size:800"`
	Message     string    `gorm:"size:8000"`
	Fingerprint string    `gorm:"size:64"`
	SubmittedAt time.Time `gorm:"not null;index"`
}

func (signatureRow) TableName() string { return "signatures" }

func (r signatureRow) signature() domain.Signature {
	return domain.Signature{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		City:        r.City,
		Region:      r.Region,
		Role:        r.Role,
		Message:     r.Message,
		SubmittedAt: r.SubmittedAt.UTC(),
		Fingerprint: r.Fingerprint,
	}
}

// SQLiteStore persiste em SQLite via gorm.
// A unicidade do e-mail fica no índice único; Put usa
// INSERT ... ON CONFLICT(email) DO NOTHING e olha RowsAffected.
type SQLiteStore struct {
	db     *gorm.DB
	clock  *monotonicClock
	logger *slog.Logger
}

// NewSQLiteStore abre (ou cria) o banco em dataDir/signatures.sqlite.
// dataDir vazio usa um banco em memória próprio desta instância.
func NewSQLiteStore(dataDir string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var dsn string
	if dataDir == "" {
		// nome único: cada store em memória tem o próprio banco
		dsn = fmt.Sprintf("file:petition-%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)",
			filepath.Join(dataDir, "signatures.sqlite"),
		)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite tem um único escritor
	sqlDB.SetMaxOpenConns(1)

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite tracing: %w", err)
	}
	logger.Debug("migrating table", "component", "store", "table", signatureRow{}.TableName())
	if err := db.AutoMigrate(&signatureRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate signatures: %w", err)
	}

	s := &SQLiteStore{db: db, clock: newMonotonicClock(), logger: logger}
	var last signatureRow
	err = db.Order("seq desc").Limit(1).Take(&last).Error
	switch {
	case err == nil:
		s.clock.observe(last.SubmittedAt)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		_ = sqlDB.Close()
		return nil, fmt.Errorf("read last signature: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Put(ctx context.Context, c domain.Candidate) (domain.PutResult, error) {
	row := signatureRow{
		ID:          uuid.NewString(),
		Email:       c.Email,
		Name:        c.Name,
		City:        c.City,
		Region:      c.Region,
		Role:        c.Role,
		Message:     c.Message,
		Fingerprint: c.Fingerprint,
	}
	var created bool
	// a transação segura a única conexão: horário e seq saem na mesma ordem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row.SubmittedAt = s.clock.Now()
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return domain.PutResult{}, storageErr("insert signature", err)
	}
	if created {
		return domain.PutResult{Signature: row.signature(), Created: true}, nil
	}

	existing, err := s.Get(ctx, c.Email)
	if err != nil {
		// o índice disse que existe; não achar é falha do meio
		if errors.Is(err, domain.ErrNotFound) {
			return domain.PutResult{}, storageErr("load existing signature", err)
		}
		return domain.PutResult{}, err
	}
	return domain.PutResult{Signature: existing}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, email string) (domain.Signature, error) {
	var row signatureRow
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Signature{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Signature{}, storageErr("get signature", err)
	}
	return row.signature(), nil
}

func (s *SQLiteStore) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&signatureRow{}).Count(&n).Error; err != nil {
		return 0, storageErr("count signatures", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountByRegion(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Region string
		N      int64
	}
	err := s.db.WithContext(ctx).
		Model(&signatureRow{}).
		Select("region, count(*) AS n").
		Group("region").
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("count by region", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Region] = r.N
	}
	return out, nil
}

func (s *SQLiteStore) CountOne(ctx context.Context, region string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&signatureRow{}).
		Where("region = ?", normalizeRegion(region)).
		Count(&n).Error
	if err != nil {
		return 0, storageErr("count region", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
