package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var latestCmd = &cobra.Command{
	Use:   "latest <feed-ref>",
	Short: "Show the latest sequence number of a feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		seq, err := scuttleClient.FeedLatest(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(map[string]any{"feed": args[0], "sequence": seq})
			return nil
		}
		if seq == nil {
			fmt.Println("no messages")
		} else {
			fmt.Println(*seq)
		}
		return nil
	},
}
