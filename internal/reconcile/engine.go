package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/ndb/internal/cas"
	"github.com/nerrad567/ndb/internal/device"
	"github.com/nerrad567/ndb/internal/infrastructure/database"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Update is one device touched by a refresh.
type Update struct {
	UID     string `json:"uid"`
	CASHash string `json:"cas_hash"`
}

// Engine projects tag lines from the content store onto the registry.
type Engine struct {
	db       *sql.DB
	store    *cas.Store
	registry *device.Registry
	logger   Logger
}

// NewEngine creates an engine. store and registry must share db.
func NewEngine(db *sql.DB, store *cas.Store, registry *device.Registry) *Engine {
	return &Engine{
		db:       db,
		store:    store,
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Refresh scans every tag line in hash order and upserts the device it
// names. Entries without a resolvable UID are skipped; every other value is
// stored as written. The pass commits as a whole or not at all; the touched
// (uid, hash) pairs are returned in processing order.
func (e *Engine) Refresh(ctx context.Context) ([]Update, error) {
	updates := []Update{}

	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		entries, err := e.store.ListByContentPrefix(ctx, tx, TagPrefix)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			p, ok := Params(ParseTagLine(entry.Content), entry.Hash)
			if !ok {
				e.logger.Debug("skipping tag line without uid", "cas_hash", entry.Hash)
				continue
			}
			if err := e.registry.UpsertTx(ctx, tx, p); err != nil {
				return fmt.Errorf("reconciling %s: %w", entry.Hash, err)
			}
			updates = append(updates, Update{UID: p.UID, CASHash: entry.Hash})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("registry refreshed from store", "updated", len(updates))
	return updates, nil
}

// Ingest stores one payload and, when it is a tag line naming a device, upserts that device in the same transaction. The returned params
// are nil when no device was touched.
func (e *Engine) Ingest(ctx context.Context, payload []byte) (string, *device.UpsertParams, error) {
	content, err := cas.TextFromBytes(payload)
	if err != nil {
		return "", nil, err
	}

	var (
		hash    string
		touched *device.UpsertParams
	)
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		hash, err = e.store.PutTx(ctx, tx, content)
		if err != nil {
			return err
		}
		if !IsTagLine(content) {
			return nil
		}

		p, ok := Params(ParseTagLine(content), hash)
		if !ok {
			e.logger.Debug("tag line without uid", "cas_hash", hash)
			return nil
		}
		if err := e.registry.UpsertTx(ctx, tx, p); err != nil {
			return err
		}
		touched = &p
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return hash, touched, nil
}
