package main

import (
	"fmt"
	"os"

	"github.com/benvon/pasfoto/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "pasfoto-configure",
		Short: "Admin tool for the pas foto upload API",
		Long:  "CLI tool for inspecting upload quotas and recent orders",
	}

	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewOrdersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
