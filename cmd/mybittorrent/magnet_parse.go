package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mybittorrent/digest"
	"mybittorrent/magnet"
)

func newMagnetParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "magnet_parse <uri>",
		Short: "Parse a magnet URI and print its tracker URL and info hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			link, err := magnet.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parsing magnet uri: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tracker URL: %s\n", link.Tracker)
			fmt.Fprintf(out, "Info Hash: %s\n", digest.Hex(link.InfoHash))
			return nil
		},
	}
}
