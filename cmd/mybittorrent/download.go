package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mybittorrent/download"
	"mybittorrent/internal/session"
	"mybittorrent/tracker"
)

func newDownloadCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "download <path>",
		Short: "Download a torrent's full file from the swarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("missing required -o <out> flag")
			}

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
			if len(resp.Peers) == 0 {
				return fmt.Errorf("tracker returned no peers")
			}

			addrs := make([]string, len(resp.Peers))
			for i, p := range resp.Peers {
				addrs[i] = p.String()
			}

			coord := download.NewCoordinator(sess)
			coord.ShowProgress = true

			if err := coord.Run(cmd.Context(), m, m.InfoHash, addrs, outPath); err != nil {
				return fmt.Errorf("downloading %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s to %s.\n", args[0], outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file path")
	return cmd
}
