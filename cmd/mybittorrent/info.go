package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mybittorrent/digest"
	"mybittorrent/metainfo"
)

func loadMetainfoFile(path string) (*metainfo.Metainfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading torrent file: %w", err)
	}
	m, err := metainfo.Load(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing torrent file: %w", err)
	}
	return m, nil
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Print a torrent file's tracker URL, length, info hash, and piece hashes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMetainfoFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tracker URL: %s\n", m.Announce)
			fmt.Fprintf(out, "Length: %d\n", m.Info.Length)
			fmt.Fprintf(out, "Info Hash: %s\n", digest.Hex(m.InfoHash))
			fmt.Fprintf(out, "Piece Length: %d\n", m.Info.PieceLength)
			fmt.Fprintln(out, "Piece Hashes:")
			for spec := range m.Pieces() {
				fmt.Fprintln(out, digest.Hex(spec.Hash))
			}
			return nil
		},
	}
}
