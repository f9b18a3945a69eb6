// Package scaffold writes a starter foundry.yml.
package scaffold

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Keerthana203/cerina-foundry/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes foundry.yml into dir. With force an existing file is replaced;
// without it CheckExisting must pass first. The written file is loaded back to
// make sure it validates.
func Initialize(dir string, force bool, w io.Writer) error {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return err
		}
	}

	files, err := templateFiles(dir)
	if err != nil {
		return err
	}

	for _, file := range files {
		if _, err := os.Stat(file.Path); err == nil && force {
			fmt.Fprintf(w, "⚠️  Replacing existing %s...\n", filepath.Base(file.Path))
		}
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	if _, err := config.Load(filepath.Join(dir, config.DefaultPath)); err != nil {
		return fmt.Errorf("created %s does not validate: %w", config.DefaultPath, err)
	}

	return nil
}

func templateFiles(dir string) ([]FileInfo, error) {
	content, err := templatesFS.ReadFile("templates/foundry.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read foundry.yml template: %w", err)
	}

	return []FileInfo{{
		Path:        filepath.Join(dir, config.DefaultPath),
		Content:     content,
		Permissions: 0644,
	}}, nil
}

// CheckExisting returns an error if dir already holds a foundry.yml.
func CheckExisting(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, config.DefaultPath)); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'foundry init --force' to overwrite it", config.DefaultPath)
	}
	return nil
}

// PrintSuccess prints the created files and the next steps.
func PrintSuccess(w io.Writer) {
	fmt.Fprintln(w, "\n✅ Successfully initialized foundry configuration!")
	fmt.Fprintln(w, "\nCreated:")
	fmt.Fprintf(w, "  ✓ %s\n", config.DefaultPath)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Point generation.base_url at your Ollama server")
	fmt.Fprintln(w, "  2. Run 'foundry serve' to start a worker")
	fmt.Fprintln(w, "  3. Run 'foundry start \"<intent>\" --wait' to draft a protocol")
}
