package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/scopecrawl/internal/config"
)

//go:embed templates/scopecrawl.yaml
var configTemplate embed.FS

const templatePath = "templates/scopecrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a scopecrawl configuration file",
		Long: `Init writes a commented .scopecrawl configuration file.

The generated file documents every crawl option and carries commented
examples of contexts, users, the global scope and exclusions.

Examples:
  # Create .scopecrawl in the current directory
  scopecrawl init

  # Create the file at a specific path
  scopecrawl init -o crawl.yaml

  # Overwrite an existing file
  scopecrawl init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to define:")
	fmt.Fprintln(out, "  - contexts and users (cookies, headers)")
	fmt.Fprintln(out, "  - the global scope and excluded URLs")
	fmt.Fprintln(out, "  - browser count, crawl limits and the scope check policy")
	return nil
}
