package sink

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/terradolor/prometheus-enviro-exporter/internal/config"
	"github.com/terradolor/prometheus-enviro-exporter/internal/errors"
	"github.com/terradolor/prometheus-enviro-exporter/internal/registry"
)

const journalDirPerm = 0o755

// Journal is a push sink targeting a local sqlite time-series
// database. Snapshots are buffered and written in batches to keep SD
// card wear down. The exporter itself never reads the journal back;
// it is a delivery target like any other sink.
type Journal struct {
	db        *sql.DB
	batchSize int

	mu     sync.Mutex
	buffer []*registry.Snapshot
}

func NewJournal(cfg config.JournalConfig) (*Journal, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), journalDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err).WithData(cfg.DBPath)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_auto_vacuum=2")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{
		db:        db,
		batchSize: cfg.BatchSize,
		buffer:    make([]*registry.Snapshot, 0, cfg.BatchSize),
	}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS readings (
            timestamp INTEGER NOT NULL,
            metric    TEXT    NOT NULL,
            value     REAL    NOT NULL,
            PRIMARY KEY (timestamp, metric)
        )
    `)
	if err != nil {
		return errors.New().Wrap(ErrStorageInit, err)
	}

	return nil
}

func (*Journal) Name() string {
	return "journal"
}

func (j *Journal) Push(ctx context.Context, snapshot *registry.Snapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buffer = append(j.buffer, snapshot)
	if len(j.buffer) < j.batchSize {
		return nil
	}

	return j.flush(ctx)
}

// flush writes the buffered snapshots in one transaction.
// Caller holds j.mu.
func (j *Journal) flush(ctx context.Context) error {
	if len(j.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO readings (timestamp, metric, value) VALUES (?, ?, ?)
        ON CONFLICT(timestamp, metric) DO UPDATE SET value = excluded.value
    `)
	if err != nil {
		tx.Rollback()
		return errFactory.Wrap(ErrStorageAccess, err)
	}
	defer stmt.Close()

	for _, snapshot := range j.buffer {
		ts := snapshot.GeneratedAt.Unix()
		for quantity, value := range snapshot.Values {
			if _, err := stmt.ExecContext(ctx, ts, string(quantity), value); err != nil {
				tx.Rollback()
				return errFactory.Wrap(ErrStorageAccess, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	j.buffer = j.buffer[:0]

	return nil
}

// Close flushes whatever is buffered and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flush(context.Background()); err != nil {
		return err
	}

	if err := j.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	return nil
}
