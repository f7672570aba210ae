package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/ndb/internal/infrastructure/database"
)

// SQL for the devices table. Every statement that reads devices for callers
// is restricted to active rows (deleted_at IS NULL).
const (
	selectColumns = `uid, hostname, ip_address, device_category, cas_hash,
		last_seen, created_at, updated_at, deleted_at`

	updateActiveSQL = `
		UPDATE devices SET
			hostname = COALESCE(?, hostname),
			ip_address = COALESCE(?, ip_address),
			device_category = COALESCE(?, device_category),
			cas_hash = ?,
			last_seen = ?,
			updated_at = ?
		WHERE uid = ? AND deleted_at IS NULL`

	// insertFreshSQL replaces a soft-deleted row holding the same uid
	// outright; none of its old values survive.
	insertFreshSQL = `
		INSERT INTO devices (
			uid, hostname, ip_address, device_category, cas_hash,
			last_seen, created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(uid) DO UPDATE SET
			hostname = excluded.hostname,
			ip_address = excluded.ip_address,
			device_category = excluded.device_category,
			cas_hash = excluded.cas_hash,
			last_seen = excluded.last_seen,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = NULL`

	activeHashesSQL = `SELECT cas_hash FROM devices WHERE deleted_at IS NULL`
)

// upsertDevice applies one upsert on q, which should be a transaction so the
// update/insert decision and the write see one consistent view.
// It reports whether the insert path was taken.
func upsertDevice(ctx context.Context, q database.Querier, p UpsertParams, now time.Time) (bool, error) {
	ts := formatTime(now)

	result, err := q.ExecContext(ctx, updateActiveSQL,
		nullableString(p.Hostname),
		nullableString(p.IPAddress),
		nullableString(p.DeviceCategory),
		p.CASHash,
		ts,
		ts,
		p.UID,
	)
	if err != nil {
		return false, fmt.Errorf("updating device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return false, nil
	}

	_, err = q.ExecContext(ctx, insertFreshSQL,
		p.UID,
		nullableString(p.Hostname),
		nullableString(p.IPAddress),
		nullableString(p.DeviceCategory),
		p.CASHash,
		ts,
		ts,
		ts,
	)
	if err != nil {
		return false, fmt.Errorf("inserting device: %w", err)
	}
	return true, nil
}

// queryDevices returns active devices matching every filter entry, ordered
// by hostname (NULLs first) then uid. The filter must already be validated.
func queryDevices(ctx context.Context, q database.Querier, f Filter) ([]Record, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(selectColumns)
	sb.WriteString(" FROM devices WHERE deleted_at IS NULL")

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		// k is one of the allow-listed column names.
		sb.WriteString(" AND ")
		sb.WriteString(k)
		sb.WriteString(" = ?")
		args = append(args, f[k])
	}
	sb.WriteString(" ORDER BY hostname, uid")

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return records, nil
}

// getDevice returns the active device with uid.
func getDevice(ctx context.Context, q database.Querier, uid string) (*Record, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM devices WHERE uid = ? AND deleted_at IS NULL", uid)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by uid: %w", err)
	}
	return rec, nil
}

// getRaw resolves an active device's hash and the referenced content.
// Missing content yields "" rather than an error.
func getRaw(ctx context.Context, q database.Querier, uid string) (hash, content string, err error) {
	err = q.QueryRowContext(ctx, `
		SELECT d.cas_hash, COALESCE(c.content, '')
		FROM devices d
		LEFT JOIN cas c ON c.hash = d.cas_hash
		WHERE d.uid = ? AND d.deleted_at IS NULL`, uid,
	).Scan(&hash, &content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrDeviceNotFound
		}
		return "", "", fmt.Errorf("querying device content: %w", err)
	}
	return hash, content, nil
}

// softDelete marks the active device with uid as deleted.
func softDelete(ctx context.Context, q database.Querier, uid string, now time.Time) error {
	ts := formatTime(now)
	result, err := q.ExecContext(ctx,
		"UPDATE devices SET deleted_at = ?, updated_at = ? WHERE uid = ? AND deleted_at IS NULL",
		ts, ts, uid,
	)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// buildStatus gathers counts and the optional hash lists.
func buildStatus(ctx context.Context, q database.Querier, opts StatusOptions) (*StatusReport, error) {
	report := &StatusReport{}

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM cas").Scan(&report.CAS); err != nil {
		return nil, fmt.Errorf("counting cas entries: %w", err)
	}
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE deleted_at IS NULL",
	).Scan(&report.Devices); err != nil {
		return nil, fmt.Errorf("counting devices: %w", err)
	}
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cas WHERE hash NOT IN ("+activeHashesSQL+")",
	).Scan(&report.OrphansCount); err != nil {
		return nil, fmt.Errorf("counting orphans: %w", err)
	}

	if opts.IncludeOrphans {
		orphans, err := queryStrings(ctx, q,
			"SELECT hash FROM cas WHERE hash NOT IN ("+activeHashesSQL+") ORDER BY hash")
		if err != nil {
			return nil, fmt.Errorf("listing orphans: %w", err)
		}
		report.Orphans = orphans
	}
	if opts.IncludeDeviceHashes {
		hashes, err := queryStrings(ctx, q,
			"SELECT DISTINCT cas_hash FROM devices WHERE deleted_at IS NULL ORDER BY cas_hash")
		if err != nil {
			return nil, fmt.Errorf("listing device hashes: %w", err)
		}
		report.DeviceHashes = hashes
	}
	return report, nil
}

// queryStrings runs a single-column query and returns a non-nil slice.
func queryStrings(ctx context.Context, q database.Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a row or rows result selected with selectColumns.
func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var hostname, ipAddress, category, deletedAt sql.NullString
	var lastSeen, createdAt, updatedAt string

	err := scanner.Scan(
		&rec.UID,
		&hostname,
		&ipAddress,
		&category,
		&rec.CASHash,
		&lastSeen,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if hostname.Valid {
		rec.Hostname = &hostname.String
	}
	if ipAddress.Valid {
		rec.IPAddress = &ipAddress.String
	}
	if category.Valid {
		rec.DeviceCategory = &category.String
	}

	var parseErr error
	if rec.LastSeen, parseErr = time.Parse(time.RFC3339, lastSeen); parseErr != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", parseErr)
	}
	if rec.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt); parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	if rec.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt); parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339, deletedAt.String)
		if err == nil {
			rec.DeletedAt = &t
		}
	}

	return &rec, nil
}

// nullableString maps nil to NULL. An empty string is stored as-is so that
// COALESCE only keeps the old value when no value was supplied.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
