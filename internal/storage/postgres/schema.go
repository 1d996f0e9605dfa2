package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// EnsureSchema applies the embedded schema files in lexical order.
// Every statement is create-if-absent, so repeated calls are no-ops.
func (s *Store) EnsureSchema(ctx context.Context) error {
	entries, err := fs.ReadDir(schemaFS, "schema")
	if err != nil {
		return fmt.Errorf("read embedded schema: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(schemaFS, "schema/"+file)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply schema %s: %w", file, classify(err))
		}
	}
	return nil
}
