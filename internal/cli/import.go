package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/stateres/internal/event"
)

// ImportResult summarizes an import run.
type ImportResult struct {
	Files    int             `json:"files"`
	Events   int             `json:"events"`
	Computed int             `json:"computed_ids"`
	IDs      []event.EventID `json:"event_ids"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <events-file>...",
		Short: "Load events into the store",
		Long: `Load events into the SQLite store.

Each file holds a JSON array of events, one JSON event per line, or a YAML
list (.yaml/.yml). Events without an event_id get a content hash id.
Re-importing an event is a no-op.

Examples:
  stateres import --db room.db events.json
  stateres import --db room.db fork-a.jsonl fork-b.jsonl`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runImport(opts *RootOptions, cmd *cobra.Command, files []string) error {
	out := newFormatter(opts, cmd)

	result := ImportResult{IDs: []event.EventID{}}
	var events []*event.Event
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read events file", err)
		}
		parsed, computed, err := parseEvents(path, data)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to parse %s", path), err)
		}
		events = append(events, parsed...)
		result.Computed += computed
		result.Files++
		out.VerboseLog("%s: %d events", path, len(parsed))
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.WriteEvents(cmd.Context(), events); err != nil {
		return WrapExitError(ExitCommandError, "failed to write events", err)
	}

	for _, ev := range events {
		result.IDs = append(result.IDs, ev.ID)
	}
	result.Events = len(events)
	opts.logger().Info("events imported", "files", result.Files, "events", result.Events, "computed_ids", result.Computed)

	return out.Success(result, fmt.Sprintf("Imported %d events from %d file(s) (%d ids computed)",
		result.Events, result.Files, result.Computed))
}

// parseEvents decodes one events file and fills in missing event ids.
func parseEvents(path string, data []byte) ([]*event.Event, int, error) {
	raws, err := splitEvents(path, data)
	if err != nil {
		return nil, 0, err
	}

	events := make([]*event.Event, 0, len(raws))
	computed := 0
	for i, raw := range raws {
		if !gjson.GetBytes(raw, "event_id").Exists() {
			var draft event.Event
			if err := json.Unmarshal(raw, &draft); err != nil {
				return nil, 0, fmt.Errorf("event %d: %w", i, err)
			}
			id, err := event.ComputeEventID(&draft)
			if err != nil {
				return nil, 0, fmt.Errorf("event %d: compute id: %w", i, err)
			}
			if raw, err = sjson.SetBytes(raw, "event_id", string(id)); err != nil {
				return nil, 0, fmt.Errorf("event %d: set id: %w", i, err)
			}
			computed++
		}

		var ev event.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, 0, fmt.Errorf("event %d: %w", i, err)
		}
		if ev.PrevEvents == nil {
			ev.PrevEvents = []event.EventID{}
		}
		if ev.AuthEvents == nil {
			ev.AuthEvents = []event.EventID{}
		}
		if err := ev.Validate(); err != nil {
			return nil, 0, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, &ev)
	}
	return events, computed, nil
}

// splitEvents returns the raw JSON of every event in the file.
func splitEvents(path string, data []byte) ([]json.RawMessage, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var docs []any
		if err := yaml.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
		raws := make([]json.RawMessage, len(docs))
		for i, doc := range docs {
			b, err := json.Marshal(doc)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			raws[i] = b
		}
		return raws, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("parse JSON array: %w", err)
		}
		return raws, nil
	}

	var raws []json.RawMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		if !json.Valid(text) {
			return nil, fmt.Errorf("line %d: invalid JSON", line)
		}
		raws = append(raws, json.RawMessage(bytes.Clone(text)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return raws, nil
}
