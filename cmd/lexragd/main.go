package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexatlas/lexrag/internal/cli"
	"github.com/lexatlas/lexrag/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lexragd",
		Short: "Lexrag daemon and CLI",
		Long:  "Lexrag daemon for running the legal document RAG API server, indexing corpora and inspecting the index",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IndexCmd())
	rootCmd.AddCommand(admin.QueryCmd())
	rootCmd.AddCommand(admin.StatsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
