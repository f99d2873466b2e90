// Package migrations embeds the versioned SQL schema and validates it at
// startup: filename format, up/down pairing, and a gap-free sequence.
// The migrator binary and the integration test harness both run the same
// embedded files, so the schema under test is the schema that ships.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embeddedFiles embed.FS

// Migration filename format: 001_migration_name.up.sql / .down.sql.
var filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info holds the parsed components of one migration filename.
type Info struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
}

// Files returns the embedded migration filesystem.
func Files() fs.FS {
	return embeddedFiles
}

// List returns every embedded migration filename that conforms to the
// naming standard, lexicographically sorted. Nonconforming files are
// rejected by Validate, not silently skipped here, so the two stay
// consistent.
func List() ([]string, error) {
	entries, err := fs.ReadDir(embeddedFiles, ".")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)

	return files, nil
}

// Parse extracts the sequence, name and direction from a migration
// filename.
func Parse(filename string) (*Info, error) {
	matches := filenameRegex.FindStringSubmatch(filename)
	if len(matches) != 4 {
		return nil, fmt.Errorf(
			"invalid migration filename %s (expected 001_name.up.sql or 001_name.down.sql)",
			filename,
		)
	}

	sequence, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence in filename %s: %w", filename, err)
	}

	return &Info{
		Sequence:  sequence,
		Name:      matches[2],
		Direction: matches[3],
		Filename:  filename,
	}, nil
}

// Validate checks the embedded set: every filename parses, every up has
// a down, and sequence numbers start at 001 with no gaps.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no embedded migration files found")
	}

	pairs := make(map[int]map[string]bool)

	for _, file := range files {
		info, err := Parse(file)
		if err != nil {
			return err
		}

		if pairs[info.Sequence] == nil {
			pairs[info.Sequence] = make(map[string]bool)
		}

		pairs[info.Sequence][info.Direction] = true
	}

	sequences := make([]int, 0, len(pairs))

	for sequence, directions := range pairs {
		if !directions["up"] {
			return fmt.Errorf("orphaned down migration: missing up for sequence %03d", sequence)
		}

		if !directions["down"] {
			return fmt.Errorf("orphaned up migration: missing down for sequence %03d", sequence)
		}

		sequences = append(sequences, sequence)
	}

	sort.Ints(sequences)

	if sequences[0] != 1 {
		return fmt.Errorf("migration sequence must start at 001, found %03d", sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("gap in migration sequence: expected %03d, found %03d",
				sequences[i-1]+1, sequences[i])
		}
	}

	return nil
}

// MaxVersion returns the highest embedded migration sequence.
func MaxVersion() int {
	files, err := List()
	if err != nil {
		return 0
	}

	max := 0

	for _, file := range files {
		if info, err := Parse(file); err == nil && info.Sequence > max {
			max = info.Sequence
		}
	}

	return max
}
