package rowsource

import (
	"context"
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"zeitslot/internal/storage"
)

// rawText keeps a YAML scalar exactly as written ("yes", "2026-05-01 09:00",
// "true" stay text), so boundary parsing sees what the operator typed.
type rawText string

func (r *rawText) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar", n.Line)
	}
	*r = rawText(n.Value)
	return nil
}

type importRow struct {
	ID          rawText `yaml:"id"`
	ScheduledAt rawText `yaml:"scheduled_at"`
	Message     rawText `yaml:"message"`
	Repeat      rawText `yaml:"repeat"`
	Enabled     rawText `yaml:"enabled"`
	LastState   rawText `yaml:"last_state"`
}

type importFile struct {
	Entries []importRow `yaml:"entries"`
}

// ImportResult summarises an import run.
type ImportResult struct {
	Upserted int
	Skipped  []string
}

// ImportYAML upserts the entries listed in a YAML document:
//
//	entries:
//	  - id: morning
//	    scheduled_at: 2026-05-01 09:00
//	    message: Guten Morgen
//	    repeat: täglich
//	    enabled: ja
//
// Position follows document order. Rows without id or message are skipped.
// Existing last_state is kept unless the document sets one.
func ImportYAML(ctx context.Context, store storage.Store, data []byte) (ImportResult, error) {
	var doc importFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ImportResult{}, fmt.Errorf("yaml unmarshal: %w", err)
	}

	existing := map[string]string{}
	rows, err := store.ListEntries(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("list entries: %w", err)
	}
	for _, r := range rows {
		existing[r.ID] = r.LastState
	}

	var res ImportResult
	for i, r := range doc.Entries {
		id := strings.TrimSpace(string(r.ID))
		if id == "" || strings.TrimSpace(string(r.Message)) == "" {
			res.Skipped = append(res.Skipped, fmt.Sprintf("#%d", i+1))
			continue
		}
		last := string(r.LastState)
		if last == "" {
			last = existing[id]
		}
		row := storage.EntryRow{
			ID:          id,
			Position:    i + 1,
			ScheduledAt: string(r.ScheduledAt),
			Message:     string(r.Message),
			Repeat:      string(r.Repeat),
			Enabled:     string(r.Enabled),
			LastState:   last,
		}
		if err := store.UpsertEntry(ctx, row); err != nil {
			return res, fmt.Errorf("entry %s: %w", id, err)
		}
		res.Upserted++
	}
	return res, nil
}

// ImportFile reads path and calls ImportYAML.
func ImportFile(ctx context.Context, store storage.Store, path string) (ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, err
	}
	return ImportYAML(ctx, store, data)
}
