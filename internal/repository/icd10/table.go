// Package icd10 provides the ICD-10 code table backing keyword search.
// Uses the pure-Go modernc.org/sqlite driver; tests run against :memory:.
package icd10

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // sqlite driver registration

	"github.com/clinika/medrag/internal/domain"
)

// DriverName is the registered database/sql driver.
const DriverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS icd10_codes (
	code          TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	category_code TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_icd10_code ON icd10_codes(code);
`

// Code is one row of the ICD-10 master table.
type Code struct {
	Code         string
	Name         string
	Description  string
	Category     string
	CategoryCode string
}

// Table answers exact/prefix keyword lookups over the ICD-10 master data.
type Table struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the code table at path. Use ":memory:" for an
// ephemeral table.
func Open(path string, logger *zap.Logger) (*Table, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open icd10 table: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate icd10 table: %w", err)
	}
	return &Table{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (t *Table) Close() error {
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("close icd10 table: %w", err)
	}
	return nil
}

// Insert upserts master-data rows. Codes are stored upper-cased.
func (t *Table) Insert(ctx context.Context, codes []Code) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO icd10_codes (code, name, description, category, category_code)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			category_code = excluded.category_code`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range codes {
		if c.Code == "" {
			return fmt.Errorf("icd10 code is required: %w", domain.ErrInvalidArgument)
		}
		if _, err := stmt.ExecContext(ctx,
			strings.ToUpper(strings.TrimSpace(c.Code)),
			c.Name, c.Description, c.Category, c.CategoryCode,
		); err != nil {
			return fmt.Errorf("insert %s: %w", c.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// SearchByCode performs keyword matching over codes: exact equality when
// exact is true, case-insensitive prefix match otherwise. Results follow the
// table's lexical code order; rank starts at 1 and score is 1/rank.
// No matches is not an error.
func (t *Table) SearchByCode(ctx context.Context, query string, exact bool, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive: %w", domain.ErrInvalidArgument)
	}

	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	var rows *sql.Rows
	var err error
	if exact {
		rows, err = t.db.QueryContext(ctx, `
			SELECT code, name, description, category, category_code
			FROM icd10_codes WHERE code = ? ORDER BY code LIMIT ?`, q, topK)
	} else {
		rows, err = t.db.QueryContext(ctx, `
			SELECT code, name, description, category, category_code
			FROM icd10_codes WHERE code LIKE ? ESCAPE '\' ORDER BY code LIMIT ?`,
			escapeLike(q)+"%", topK)
	}
	if err != nil {
		return nil, fmt.Errorf("search icd10 %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }()

	var hits []domain.SearchHit
	rank := 0
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.Code, &c.Name, &c.Description, &c.Category, &c.CategoryCode); err != nil {
			return nil, fmt.Errorf("scan icd10 row: %w", err)
		}
		rank++
		hits = append(hits, domain.SearchHit{
			ID:   c.Code,
			Code: c.Code,
			Text: c.Name,
			Metadata: map[string]string{
				"code":          c.Code,
				"name":          c.Name,
				"description":   c.Description,
				"category":      c.Category,
				"category_code": c.CategoryCode,
			},
			Score:  1.0 / float64(rank),
			Rank:   rank,
			Source: domain.SourceKeyword,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate icd10 rows: %w", err)
	}

	t.logger.Debug("Keyword search",
		zap.String("query", query),
		zap.Bool("exact", exact),
		zap.Int("results", len(hits)),
	)
	return hits, nil
}

// Count reports the number of codes in the table.
func (t *Table) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM icd10_codes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count icd10 codes: %w", err)
	}
	return n, nil
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
