package main

import (
	"fmt"
	"os"

	"github.com/zebra-devops/MarketEdge-Platform-sub003/cmd/modhub/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		cmd.OsExit(1)
	}
}
