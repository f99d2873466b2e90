package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// EmptyPayloadRef is the payload reference recorded for units the API has
// no data for. It never resolves to a file; readers treat it as zero rows.
const EmptyPayloadRef = "__empty__"

// ErrPayloadNotFound indicates a payload reference does not resolve to a
// stored file.
var ErrPayloadNotFound = errors.New("payload not found")

// PayloadStore persists raw API payloads under a root directory with
// atomic writes, so a crash mid-write never leaves a truncated file that
// a done checkpoint could point at.
type PayloadStore struct {
	root string
}

// NewPayloadStore creates a payload store rooted at dir.
func NewPayloadStore(dir string) *PayloadStore {
	return &PayloadStore{root: dir}
}

// Write persists the raw pages of one unit as a single JSON document and
// returns the payload reference to record in the checkpoint. The file is
// written to a temporary name and renamed into place; the rename is the
// commit point.
func (p *PayloadStore) Write(unit Unit, pages [][]byte) (string, error) {
	raw := make([]json.RawMessage, len(pages))
	for i, page := range pages {
		raw[i] = json.RawMessage(page)
	}

	doc, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("encode payload for %s: %w", unit.Key(), err)
	}

	ref := p.ref(unit)
	path := filepath.Join(p.root, ref)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create payload directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o644); err != nil {
		return "", fmt.Errorf("write payload for %s: %w", unit.Key(), err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("commit payload for %s: %w", unit.Key(), err)
	}

	return ref, nil
}

// Read returns the stored pages for a payload reference. The empty-payload
// marker resolves to no pages.
func (p *PayloadStore) Read(ref string) ([][]byte, error) {
	if ref == EmptyPayloadRef {
		return nil, nil
	}

	doc, err := os.ReadFile(filepath.Join(p.root, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPayloadNotFound, ref)
		}

		return nil, fmt.Errorf("read payload %s: %w", ref, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode payload %s: %w", ref, err)
	}

	pages := make([][]byte, len(raw))
	for i, page := range raw {
		pages[i] = []byte(page)
	}

	return pages, nil
}

// Exists reports whether a payload reference resolves to a stored file.
// The empty-payload marker always exists.
func (p *PayloadStore) Exists(ref string) bool {
	if ref == EmptyPayloadRef {
		return true
	}

	_, err := os.Stat(filepath.Join(p.root, ref))

	return err == nil
}

func (p *PayloadStore) ref(unit Unit) string {
	if unit.Round > 0 {
		return filepath.Join(string(unit.Resource), fmt.Sprintf("%d_%02d.json", unit.Season, unit.Round))
	}

	return filepath.Join(string(unit.Resource), fmt.Sprintf("%d.json", unit.Season))
}
