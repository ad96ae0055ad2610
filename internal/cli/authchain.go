package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/stateres"
)

// AuthChainResult is the JSON payload of the authchain command.
type AuthChainResult struct {
	RoomID event.RoomID    `json:"room_id"`
	Seeds  []event.EventID `json:"seeds"`
	Chain  []event.EventID `json:"chain"`
}

// NewAuthChainCommand creates the authchain command.
func NewAuthChainCommand(rootOpts *RootOptions) *cobra.Command {
	var roomID string

	cmd := &cobra.Command{
		Use:   "authchain <event-id>...",
		Short: "Print the auth chain of events",
		Long: `Print the sorted auth chain of one or more events: the events
themselves plus every event reachable through auth_events.

Examples:
  stateres authchain --db room.db --room '!r:example.org' '$abc'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				return NewExitError(ExitCommandError, "--room is required")
			}
			return runAuthChain(rootOpts, cmd, event.RoomID(roomID), args)
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "room id (required)")
	return cmd
}

func runAuthChain(opts *RootOptions, cmd *cobra.Command, roomID event.RoomID, args []string) error {
	out := newFormatter(opts, cmd)

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	seeds := make([]event.EventID, len(args))
	for i, a := range args {
		seeds[i] = event.EventID(a)
	}

	chain, err := stateres.AuthChain(cmd.Context(), st, roomID, seeds)
	if err != nil {
		var re *stateres.ResolveError
		if errors.As(err, &re) {
			if outErr := out.Error(string(re.Code), re.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "auth chain failed", err)
		}
		return WrapExitError(ExitCommandError, "auth chain failed", err)
	}

	lines := make([]string, len(chain))
	for i, id := range chain {
		lines[i] = string(id)
	}
	opts.logger().Debug("auth chain computed", "seeds", len(seeds), "chain", len(chain))

	return out.Success(AuthChainResult{RoomID: roomID, Seeds: seeds, Chain: chain},
		strings.Join(lines, "\n"))
}
