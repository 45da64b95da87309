package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/netscope-io/netscope/pkg/store"
)

// HistoryCmd lists the version chain of one identity.
var HistoryCmd = &cobra.Command{
	Use:   "history <device> [kind:name]",
	Short: "Show the state history of a device or one of its identities",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close(ctx)

		key := store.DeviceKey(args[0])
		if len(args) == 2 {
			kind, name, ok := strings.Cut(args[1], ":")
			if !ok {
				return fmt.Errorf("identity must be kind:name, got %q", args[1])
			}
			key = store.Key{Kind: kind, Device: args[0], Name: name}
		}

		chain, err := e.Store.StateChain(ctx, key)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d version(s)\n", key, len(chain))
		for _, st := range chain {
			fmt.Printf("  v%-4d %s fingerprint=%016x fields=%d\n",
				st.Version, st.Timestamp.UTC().Format(time.RFC3339), st.Fingerprint, len(st.Fields))
		}
		return nil
	},
}
