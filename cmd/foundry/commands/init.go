package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Keerthana203/cerina-foundry/internal/printer"
	"github.com/Keerthana203/cerina-foundry/internal/scaffold"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter foundry.yml",
	Long: `Write foundry.yml to the current directory with every setting at its
default value.

Use --force to overwrite an existing foundry.yml.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing foundry.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if err := scaffold.Initialize(dir, forceInit, printer.Out); err != nil {
		return printer.Error("initialization failed", err.Error(), nil)
	}

	scaffold.PrintSuccess(printer.Out)
	return nil
}
