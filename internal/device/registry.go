package device

import (
	"context"
	"database/sql"
	"time"

	"github.com/nerrad567/ndb/internal/infrastructure/database"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps device UIDs to their latest attributes and content hash.
//
// Every public method runs in exactly one transaction. The registry holds
// no cache; concurrent processes sharing the database file see each
// other's writes once committed.
//
// Thread Safety:
//   - All public methods are safe for concurrent use
//   - Writers are serialised by the database's single connection
type Registry struct {
	db     *sql.DB
	logger Logger
	now    func() time.Time
}

// NewRegistry creates a registry over an open, migrated database.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{
		db:     db,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Upsert updates the active row for p.UID, keeping stored values for nil
// fields, or inserts a fresh record when no active row exists.
//
// The content hash always replaces the stored one. Attribute values are
// stored as given; only a missing uid or hash is rejected.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - p: Device uid, content hash and the attributes to change
//
// Returns:
//   - error: ErrInvalidDevice if uid or hash is empty, or a database error
//
// Example:
//
//	host := "cp1"
//	err := registry.Upsert(ctx, device.UpsertParams{
//	    UID:      "cp1",
//	    CASHash:  hash,
//	    Hostname: &host,
//	})
func (r *Registry) Upsert(ctx context.Context, p UpsertParams) error {
	if err := ValidateUpsert(p); err != nil {
		return err
	}
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return r.upsert(ctx, tx, p)
	})
}

// UpsertTx is Upsert inside a transaction owned by the caller, so a batch of
// upserts commits or rolls back together.
func (r *Registry) UpsertTx(ctx context.Context, tx database.Querier, p UpsertParams) error {
	if err := ValidateUpsert(p); err != nil {
		return err
	}
	return r.upsert(ctx, tx, p)
}

func (r *Registry) upsert(ctx context.Context, q database.Querier, p UpsertParams) error {
	inserted, err := upsertDevice(ctx, q, p, r.now())
	if err != nil {
		return err
	}
	if inserted {
		r.logger.Info("device inserted", "uid", p.UID, "cas_hash", p.CASHash)
	} else {
		r.logger.Debug("device updated", "uid", p.UID, "cas_hash", p.CASHash)
	}
	return nil
}

// Query returns active devices matching every filter entry, ordered by
// hostname then uid. Unknown filter keys fail with ErrInvalidField before
// anything is read.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - f: Field name to exact value; an empty filter matches every device
//
// Returns:
//   - []Record: Matching devices, empty when none match
//   - error: ErrInvalidField for an unknown key, or a database error
func (r *Registry) Query(ctx context.Context, f Filter) ([]Record, error) {
	if err := ValidateFilter(f); err != nil {
		return nil, err
	}

	var records []Record
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		records, err = queryDevices(ctx, tx, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// List returns every active device.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	return r.Query(ctx, nil)
}

// Get returns the active device with uid, or ErrDeviceNotFound.
func (r *Registry) Get(ctx context.Context, uid string) (*Record, error) {
	var rec *Record
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		rec, err = getDevice(ctx, tx, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetRaw returns the device's content hash and the content it references.
// If the content entry is missing the hash is returned with "".
func (r *Registry) GetRaw(ctx context.Context, uid string) (hash, content string, err error) {
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		hash, content, err = getRaw(ctx, tx, uid)
		return err
	})
	if err != nil {
		return "", "", err
	}
	if content == "" {
		r.logger.Warn("device content missing from store", "uid", uid, "cas_hash", hash)
	}
	return hash, content, nil
}

// Delete soft-deletes the active device with uid. The row is kept for
// orphan accounting; a later upsert of the same uid starts a fresh record.
func (r *Registry) Delete(ctx context.Context, uid string) error {
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return softDelete(ctx, tx, uid, r.now())
	})
	if err != nil {
		return err
	}
	r.logger.Info("device deleted", "uid", uid)
	return nil
}

// Status reports entry, device and orphan counts. An orphan is a content
// entry referenced by no active device.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - opts: Whether to list orphan hashes and per-device hashes
//
// Returns:
//   - *StatusReport: Counts, plus the requested lists
//   - error: If any count or listing query fails
func (r *Registry) Status(ctx context.Context, opts StatusOptions) (*StatusReport, error) {
	var report *StatusReport
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		report, err = buildStatus(ctx, tx, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
