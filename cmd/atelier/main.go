package main

import (
	"context"
	"fmt"
	"os"

	"atelier/cmd/atelier/cli"
	"atelier/internal/logging"
)

func main() {
	root := cli.NewRootCommand()

	err := root.ExecuteContext(context.Background())
	_ = logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
