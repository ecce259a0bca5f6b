package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mybittorrent/internal/session"
	"mybittorrent/tracker"
)

func newPeersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers <path>",
		Short: "Announce to the tracker and print each discovered peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMetainfoFile(args[0])
			if err != nil {
				return err
			}

			sess, err := session.New()
			if err != nil {
				return fmt.Errorf("initializing session: %w", err)
			}

			resp, err := tracker.NewClient(sess).Announce(cmd.Context(), m, sess)
			if err != nil {
				return fmt.Errorf("announcing to tracker: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, p := range resp.Peers {
				fmt.Fprintln(out, p.String())
			}
			return nil
		},
	}
}
