// Command edgewired runs the edge protocol frontend server. Grounded on
// autobrr-qui's cmd/qui cobra command layout, adapted from a subcommand
// tree to a single long-running "serve" command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "edgewired",
		Short: "Edge protocol frontend server",
	}

	root.AddCommand(runServeCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
