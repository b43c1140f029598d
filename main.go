// mindgraph turns labeled study material into knowledge graphs.
//
// It builds a subject/topic/subtopic/chunk hierarchy per batch, folds
// batches into a single topic graph, and answers topic, resource and
// semantic-similarity queries from the CLI or over MCP.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/mindgraph/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
