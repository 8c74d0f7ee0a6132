package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/settlement-cli/internal/ratio"
)

// WriteSQLite replaces the contents of table in the SQLite database at path
// with the ratio table. The table is created if needed.
func WriteSQLite(ctx context.Context, path, table string, records []ratio.Record) error {
	if path == "" {
		return eris.New("export: output path is empty")
	}
	name, err := sqliteIdent(table)
	if err != nil {
		return err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "export: sqlite open")
	}
	defer conn.Close() //nolint:errcheck

	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return eris.Wrap(err, "export: sqlite pragma")
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "export: sqlite begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	total_schoolchildren INTEGER NOT NULL,
	total_school_places  INTEGER NOT NULL,
	ratio                REAL NOT NULL,
	outlier              INTEGER NOT NULL
)`, name)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return eris.Wrap(err, "export: sqlite create table")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+name); err != nil {
		return eris.Wrap(err, "export: sqlite clear table")
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?)", name, strings.Join(Columns, ", ")))
	if err != nil {
		return eris.Wrap(err, "export: sqlite prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Children, r.Places, r.Ratio, r.Outlier); err != nil {
			return eris.Wrapf(err, "export: sqlite insert %s", r.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "export: sqlite commit")
	}
	return nil
}

// sqliteIdent quotes a table name made of letters, digits and underscores.
func sqliteIdent(table string) (string, error) {
	if table == "" {
		return "", eris.New("export: table name is empty")
	}
	for _, r := range table {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return "", eris.Errorf("export: invalid table name %q", table)
		}
	}
	return `"` + table + `"`, nil
}
