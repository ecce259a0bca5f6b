package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mybittorrent/bencode"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <bencode>",
		Short: "Decode a bencoded value and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _, err := bencode.Decode([]byte(args[0]))
			if err != nil {
				return fmt.Errorf("decoding bencode value: %w", err)
			}

			out, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("rendering decoded value as JSON: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
