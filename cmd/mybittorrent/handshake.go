package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"mybittorrent/internal/session"
	"mybittorrent/peer"
)

func newHandshakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handshake <path> <ip:port>",
		Short: "Perform the peer handshake and print the peer's id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadMetainfoFile(args[0])
			if err != nil {
				return err
			}

			sess, err := session.New()
			if err != nil {
				return fmt.Errorf("initializing session: %w", err)
			}

			conn, err := peer.Dial(cmd.Context(), args[1], m.InfoHash, sess)
			if err != nil {
				return fmt.Errorf("handshaking with %s: %w", args[1], err)
			}
			defer conn.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Peer ID: %s\n", hex.EncodeToString(conn.RemotePeerID[:]))
			return nil
		},
	}
}
