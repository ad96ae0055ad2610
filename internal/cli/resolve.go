package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/eventauth"
	"github.com/roach88/stateres/internal/stateres"
	"github.com/roach88/stateres/internal/store"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	RoomID     string
	Version    string
	StateFiles []string
	Snapshots  []string
	Save       string
}

// ResolveResult is the JSON payload of a successful resolution.
type ResolveResult struct {
	RoomID  event.RoomID          `json:"room_id"`
	Version eventauth.RoomVersion `json:"version"`
	State   []event.StateEntry    `json:"state"`
	Saved   string                `json:"saved,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve state sets into one state",
		Long: `Resolve two or more state sets of a room into a single state.

State sets come from JSON files ([{"type","state_key","event_id"}, ...]) or
from named snapshots. Events are read from the store.

Exit codes:
  0 - Resolved
  1 - Resolution failed (missing event, malformed event, auth cycle)
  2 - Command error

Examples:
  stateres resolve --db room.db --room '!r:example.org' --state a.json --state b.json
  stateres resolve --db room.db --snapshot fork-a --snapshot fork-b --save merged`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RoomID, "room", "", "room id (defaults to the snapshots' room)")
	cmd.Flags().StringVar(&opts.Version, "version", rootOpts.Config.RoomVersion, versionUsage())
	cmd.Flags().StringArrayVar(&opts.StateFiles, "state", nil, "state set file (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Snapshots, "snapshot", nil, "named snapshot (repeatable)")
	cmd.Flags().StringVar(&opts.Save, "save", "", "store the result as a named snapshot")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := newFormatter(opts.RootOptions, cmd)

	if len(opts.StateFiles)+len(opts.Snapshots) == 0 {
		return NewExitError(ExitCommandError, "at least one --state or --snapshot is required")
	}
	version := eventauth.RoomVersion(opts.Version)
	if version == "" {
		version = eventauth.RoomV10
	}
	if _, err := eventauth.RulesFor(version); err != nil {
		return WrapExitError(ExitCommandError, "invalid --version", err)
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	roomID := event.RoomID(opts.RoomID)
	var sets []event.StateMap
	for _, name := range opts.Snapshots {
		snap, err := st.ReadSnapshot(ctx, name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read snapshot", err)
		}
		if roomID == "" {
			roomID = snap.RoomID
		}
		if snap.RoomID != roomID {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("snapshot %s belongs to %s, not %s", name, snap.RoomID, roomID))
		}
		sets = append(sets, snap.State)
	}
	for _, path := range opts.StateFiles {
		m, err := readStateFile(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read state file", err)
		}
		sets = append(sets, m)
	}
	if roomID == "" {
		return NewExitError(ExitCommandError, "--room is required when no snapshot is given")
	}

	resolver := stateres.New(st, stateres.WithLogger(opts.logger()))
	resolved, err := resolver.Resolve(ctx, roomID, version, sets, nil)
	if err != nil {
		var re *stateres.ResolveError
		if errors.As(err, &re) {
			details := map[string]any{"room_id": re.RoomID}
			if re.EventID != "" {
				details["event_id"] = re.EventID
			}
			if len(re.Cycle) > 0 {
				details["cycle"] = re.Cycle
			}
			if outErr := out.Error(string(re.Code), re.Error(), details); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "resolution failed", err)
		}
		return WrapExitError(ExitCommandError, "resolution failed", err)
	}

	result := ResolveResult{
		RoomID:  roomID,
		Version: version,
		State:   resolved.Entries(),
	}
	if opts.Save != "" {
		if err := st.WriteSnapshot(ctx, store.Snapshot{
			Name:    opts.Save,
			RoomID:  roomID,
			Version: version,
			State:   resolved,
		}); err != nil {
			return WrapExitError(ExitCommandError, "failed to save snapshot", err)
		}
		result.Saved = opts.Save
		out.VerboseLog("saved snapshot %s", opts.Save)
	}

	canonical, err := resolved.MarshalCanonical()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode state", err)
	}
	return out.Success(result, string(canonical))
}

// versionUsage is the --version help text listing the known room versions.
func versionUsage() string {
	versions := eventauth.SupportedVersions()
	names := make([]string, len(versions))
	for i, v := range versions {
		names[i] = string(v)
	}
	return "room version (one of " + strings.Join(names, ", ") + ")"
}

// readStateFile loads a state set written as a JSON array of
// {"type","state_key","event_id"} entries, the same shape resolve prints.
func readStateFile(path string) (event.StateMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []event.StateEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	m, err := event.StateMapFromEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
