package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var appendCmd = &cobra.Command{
	Use:   "append [file]",
	Short: "Append messages to the log (one JSON message per line, from a file or stdin)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		messages, err := readMessages(r)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return fmt.Errorf("no messages to append")
		}

		seqs, err := scuttleClient.Append(context.Background(), messages)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(map[string]any{"seqs": seqs})
		} else {
			fmt.Printf("appended %d messages (seqs %d..%d)\n", len(seqs), seqs[0], seqs[len(seqs)-1])
		}
		return nil
	},
}

// readMessages parses newline-delimited JSON, or a single JSON array.
func readMessages(r io.Reader) ([]json.RawMessage, error) {
	br := bufio.NewReader(r)

	// Peek at the first non-space byte to detect an array.
	for {
		b, err := br.Peek(1)
		if err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, err
		}
		if b[0] == ' ' || b[0] == '\t' || b[0] == '\n' || b[0] == '\r' {
			br.Discard(1)
			continue
		}
		if b[0] == '[' {
			var messages []json.RawMessage
			if err := json.NewDecoder(br).Decode(&messages); err != nil {
				return nil, fmt.Errorf("parsing message array: %w", err)
			}
			return messages, nil
		}
		break
	}

	var messages []json.RawMessage
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		if !json.Valid(text) {
			return nil, fmt.Errorf("line %d: invalid JSON", line)
		}
		msg := make(json.RawMessage, len(text))
		copy(msg, text)
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
