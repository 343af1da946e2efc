package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tidemark/scuttlestore/internal/client"
)

var feedCmd = &cobra.Command{
	Use:   "feed <feed-ref>",
	Short: "List messages from a feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetInt64("after")
		limit, _ := cmd.Flags().GetInt64("limit")
		keys, _ := cmd.Flags().GetBool("keys")
		values, _ := cmd.Flags().GetBool("values")
		seq, _ := cmd.Flags().GetInt64("seq")

		if cmd.Flags().Changed("seq") {
			msg, err := scuttleClient.GetFeedMessage(context.Background(), args[0], seq)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printRawMessage(msg)
			return nil
		}

		resp, err := scuttleClient.FeedMessages(context.Background(), &client.FeedMessagesRequest{
			Feed:          args[0],
			After:         after,
			Limit:         limit,
			IncludeKeys:   keys,
			IncludeValues: values,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		switch {
		case keys && !values:
			printKeys(resp.Keys)
		case values && !keys:
			for _, v := range resp.Values {
				printRawMessage(v)
			}
		default:
			for _, m := range resp.Messages {
				printRawMessage(m)
			}
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().Int64("after", 0, "only messages with sequence greater than this")
	feedCmd.Flags().Int64("limit", 0, "maximum number of messages (0 = no limit)")
	feedCmd.Flags().Bool("keys", true, "include message keys")
	feedCmd.Flags().Bool("values", true, "include message values")
	feedCmd.Flags().Int64("seq", 0, "fetch the single message at this sequence")
}
