// Command mybittorrent is a BitTorrent client capable of downloading a
// single-file torrent from a swarm of peers: bencode inspection, metainfo
// introspection, tracker/peer diagnostics, and the full download path.
package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/colorstring"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		colorstring.Fprintln(os.Stderr, fmt.Sprintf("[red]error:[reset] %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mybittorrent",
		Short:         "A minimal single-file BitTorrent client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newDecodeCmd(),
		newInfoCmd(),
		newPeersCmd(),
		newHandshakeCmd(),
		newDownloadPieceCmd(),
		newDownloadCmd(),
		newMagnetParseCmd(),
	)

	return root
}
