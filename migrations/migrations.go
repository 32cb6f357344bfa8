// README: Embedded SQL migrations and a runner that applies them in file order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed *.sql
var files embed.FS

// Statements returns every statement of every migration, in file name order.
func Statements() ([]string, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		content, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(content), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			out = append(out, strings.TrimSpace(stmt))
		}
	}
	return out, nil
}

// Apply runs all migrations. Statements are idempotent.
func Apply(ctx context.Context, db *pgxpool.Pool) (int, error) {
	stmts, err := Statements()
	if err != nil {
		return 0, err
	}
	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return i, fmt.Errorf("apply migration statement %d: %w", i+1, err)
		}
	}
	return len(stmts), nil
}
