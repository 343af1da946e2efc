package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidemark/scuttlestore/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// printRawMessage prints a raw JSON message, indented unless --json is set.
func printRawMessage(msg json.RawMessage) {
	if jsonOutput {
		fmt.Println(string(msg))
		return
	}
	var buf map[string]any
	if err := json.Unmarshal(msg, &buf); err != nil {
		fmt.Println(string(msg))
		return
	}
	printJSON(buf)
}

func printKeys(keys []string) {
	if jsonOutput {
		printJSON(map[string]any{"keys": keys})
		return
	}
	for _, k := range keys {
		if ui.ShouldUseColor() {
			fmt.Println(ui.RenderAccent(k))
		} else {
			fmt.Println(k)
		}
	}
}
