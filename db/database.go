package db

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"vintage-mod-manager/logger"

	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// zapWriter routes GORM's own log lines into the application logger.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	logger.Log.Warnf(format, args...)
}

// Open opens the SQLite database at dbPath and migrates the models.
func Open(dbPath string) (*gorm.DB, error) {
	newLogger := gormlogger.New(
		zapWriter{},
		gormlogger.Config{
			SlowThreshold:             time.Second,     // Slow SQL threshold
			LogLevel:                  gormlogger.Warn, // Log level (Warn, Error, Info)
			IgnoreRecordNotFoundError: true,            // Ignore ErrRecordNotFound error
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(gormlite.Open(dbPath), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := conn.AutoMigrate(&InstalledMod{}, &ModVersion{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return conn, nil
}

// Ledger records which mod versions are installed. Its methods are safe for
// concurrent use by download workers; writes are serialized.
type Ledger struct {
	mu sync.Mutex
	db *gorm.DB
}

func NewLedger(conn *gorm.DB) *Ledger {
	return &Ledger{db: conn}
}

// OpenLedger opens the database at path and wraps it.
func OpenLedger(path string) (*Ledger, error) {
	conn, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewLedger(conn), nil
}

// Installed returns the ledger row for modID, if any.
func (l *Ledger) Installed(modID string) (InstalledMod, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var m InstalledMod
	err := l.db.Where("mod_id = ?", modID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return InstalledMod{}, false, nil
	}
	if err != nil {
		return InstalledMod{}, false, fmt.Errorf("query installed mod %s: %w", modID, err)
	}
	return m, true, nil
}

// RecordInstall upserts the installed row for m.ModID and appends the
// version to its history, in one transaction.
func (l *Ledger) RecordInstall(m InstalledMod) error {
	if m.ModID == "" {
		return errors.New("record install: empty mod id")
	}
	if m.InstalledAt.IsZero() {
		m.InstalledAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.db.Transaction(func(tx *gorm.DB) error {
		var existing InstalledMod
		err := tx.Where("mod_id = ?", m.ModID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&m).Error; err != nil {
				return fmt.Errorf("create installed mod %s: %w", m.ModID, err)
			}
		case err != nil:
			return fmt.Errorf("query installed mod %s: %w", m.ModID, err)
		default:
			existing.Version = m.Version
			existing.FileName = m.FileName
			existing.InstallPath = m.InstallPath
			existing.Tag = m.Tag
			existing.Mismatch = m.Mismatch
			existing.InstalledAt = m.InstalledAt
			if err := tx.Save(&existing).Error; err != nil {
				return fmt.Errorf("update installed mod %s: %w", m.ModID, err)
			}
		}

		history := ModVersion{ModID: m.ModID, Version: m.Version, InstallPath: m.InstallPath, Tag: m.Tag}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("record history for %s: %w", m.ModID, err)
		}
		return nil
	})
}

// List returns every installed mod ordered by mod id.
func (l *Ledger) List() ([]InstalledMod, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var mods []InstalledMod
	if err := l.db.Order("mod_id").Find(&mods).Error; err != nil {
		return nil, fmt.Errorf("list installed mods: %w", err)
	}
	return mods, nil
}

// History returns the recorded installs of modID, newest first.
func (l *Ledger) History(modID string) ([]ModVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var versions []ModVersion
	if err := l.db.Where("mod_id = ?", modID).Order("id desc").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("history for %s: %w", modID, err)
	}
	return versions, nil
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
