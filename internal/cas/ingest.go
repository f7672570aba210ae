package cas

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/ndb/internal/infrastructure/database"
)

// maxIngestLine bounds a single line read by Ingest (bytes).
const maxIngestLine = 1 << 20

// IngestResult summarises a bulk import.
type IngestResult struct {
	// Stored counts lines that created a new entry.
	Stored int `json:"stored"`

	// Duplicates counts lines whose content was already present.
	Duplicates int `json:"duplicates"`

	// Hashes lists the hash of every imported line in input order.
	Hashes []string `json:"hashes"`
}

// Ingest imports a line-oriented .ndb file: every non-blank line that does
// not start with '#' is trimmed and stored as its own entry.
//
// The import is all-or-nothing: a line that fails validation aborts the
// whole file and nothing is stored.
func (s *Store) Ingest(ctx context.Context, r io.Reader) (*IngestResult, error) {
	res := &IngestResult{Hashes: []string{}}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxIngestLine)

		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if strings.HasPrefix(line, "#") {
				continue
			}
			content := strings.TrimSpace(line)
			if content == "" {
				continue
			}
			if _, err := TextFromBytes([]byte(content)); err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}

			hash, created, err := put(ctx, tx, content)
			if err != nil {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			if created {
				res.Stored++
			} else {
				res.Duplicates++
			}
			res.Hashes = append(res.Hashes, hash)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
