package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"mybittorrent/internal/session"
	"mybittorrent/peer"
	"mybittorrent/piece"
	"mybittorrent/tracker"
)

func newDownloadPieceCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "download_piece <path> <piece>",
		Short: "Download a single piece of a torrent to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("missing required -o <out> flag")
			}

			pieceIndex, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("parsing piece index: %w", err)
			}

			m, err := loadMetainfoFile(args[0])
			if err != nil {
				return err
			}
			if pieceIndex < 0 || pieceIndex >= m.PieceCount() {
				return fmt.Errorf("piece index %d out of range [0, %d)", pieceIndex, m.PieceCount())
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

			conn, err := peer.Dial(cmd.Context(), resp.Peers[0].String(), m.InfoHash, sess)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", resp.Peers[0], err)
			}
			defer conn.Close()

			if err := conn.SendInterested(); err != nil {
				return fmt.Errorf("sending interested: %w", err)
			}
			if _, err := conn.WaitFor(peer.MsgUnchoke); err != nil {
				return fmt.Errorf("waiting for unchoke: %w", err)
			}

			spec := m.PieceTable()[pieceIndex]
			data, err := piece.Download(cmd.Context(), conn, spec)
			if err != nil {
				return fmt.Errorf("downloading piece %d: %w", pieceIndex, err)
			}

			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Piece %d downloaded to %s.\n", pieceIndex, outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file path")
	return cmd
}
