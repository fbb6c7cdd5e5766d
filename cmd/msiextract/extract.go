// cmd/msiextract/extract.go

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"gopkg.in/yaml.v3"

	"github.com/windowsadmins/msiextract/pkg/config"
	"github.com/windowsadmins/msiextract/pkg/extract"
	"github.com/windowsadmins/msiextract/pkg/logging"
	"github.com/windowsadmins/msiextract/pkg/msi"
	"github.com/windowsadmins/msiextract/pkg/utils"
)

// multiFlag collects repeated -f values.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ", ")
}

func (m *multiFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

// ManifestEntry records one extracted file.
type ManifestEntry struct {
	File   string `yaml:"file"`
	Path   string `yaml:"path"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

// Manifest is written by extract -manifest.
type Manifest struct {
	Package   string          `yaml:"package"`
	Output    string          `yaml:"output"`
	Extracted time.Time       `yaml:"extracted"`
	Files     []ManifestEntry `yaml:"files"`
}

func runExtract(ctx context.Context, cfg *config.Configuration, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	outputDir := fs.String("o", cfg.OutputDir, "Output directory")
	interactive := fs.Bool("i", false, "Choose the files to extract interactively")
	manifestPath := fs.String("manifest", "", "Write a YAML manifest with SHA-256 sums of the extracted files")
	var names multiFlag
	fs.Var(&names, "f", "Long file name to extract (repeatable)")
	_, path, err := packageArg(fs, args, 0)
	if err != nil {
		return err
	}

	catalog, err := readCatalog(path)
	if err != nil {
		return err
	}

	var files []msi.FileEntry
	switch {
	case *interactive:
		if files, err = chooseFiles(catalog); err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files selected.")
			return nil
		}
	case len(names) > 0:
		var missing []string
		files, missing = msi.FindByLongName(catalog, names)
		for _, name := range missing {
			logging.Warn("File was not found in the package", "name", name)
		}
		if len(files) == 0 {
			return fmt.Errorf("%w: none of the requested files are in the package", msi.ErrInvalidArgument)
		}
	default:
		files = catalog
	}

	byKey := make(map[string]msi.FileEntry, len(files))
	for _, f := range files {
		if _, ok := byKey[f.FileKey]; !ok {
			byKey[f.FileKey] = f
		}
	}

	var written []msi.FileEntry
	req := extract.Request{
		PackagePath: path,
		OutputDir:   *outputDir,
		Files:       files,
		OnProgress: func(e extract.ProgressEvent) error {
			if e.Activity != extract.ExtractingFile {
				return nil
			}
			f := byKey[e.FileName]
			written = append(written, f)
			if cfg.Verbose {
				fmt.Printf("[%d/%d] %s\n", e.FilesDone, e.FilesTotal, f.Path())
			}
			return nil
		},
	}
	if err := extract.NewFromConfig(cfg).Extract(ctx, req); err != nil {
		return err
	}
	fmt.Printf("Extracted %d of %d file(s) to %s\n", len(written), len(files), *outputDir)

	if *manifestPath != "" {
		return writeManifest(*manifestPath, path, *outputDir, written)
	}
	return nil
}

func readCatalog(path string) ([]msi.FileEntry, error) {
	p, err := msi.Open(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return msi.BuildCatalog(p)
}

func chooseFiles(catalog []msi.FileEntry) ([]msi.FileEntry, error) {
	options := make([]string, len(catalog))
	byPath := make(map[string]msi.FileEntry, len(catalog))
	for i, f := range catalog {
		options[i] = f.Path()
		if _, ok := byPath[options[i]]; ok {
			options[i] = fmt.Sprintf("%s (%s)", f.Path(), f.FileKey)
		}
		byPath[options[i]] = f
	}

	var selected []string
	prompt := &survey.MultiSelect{
		Message:  "Files to extract:",
		Options:  options,
		PageSize: 15,
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return nil, fmt.Errorf("%w: %w", msi.ErrCanceled, err)
		}
		return nil, err
	}

	files := make([]msi.FileEntry, 0, len(selected))
	for _, s := range selected {
		files = append(files, byPath[s])
	}
	return files, nil
}

func writeManifest(manifestPath, pkgPath, outputDir string, files []msi.FileEntry) error {
	m := Manifest{Package: pkgPath, Output: outputDir, Extracted: time.Now().UTC()}
	for _, f := range files {
		dest := filepath.Join(outputDir, filepath.FromSlash(f.Path()))
		sum, err := utils.FileSHA256(dest)
		if err != nil {
			return fmt.Errorf("%w: hash %s: %w", msi.ErrIO, dest, err)
		}
		fi, err := os.Stat(dest)
		if err != nil {
			return fmt.Errorf("%w: %w", msi.ErrIO, err)
		}
		m.Files = append(m.Files, ManifestEntry{File: f.FileKey, Path: f.Path(), Size: fi.Size(), SHA256: sum})
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	logging.Info("Wrote manifest", "path", manifestPath, "files", len(m.Files))
	return nil
}
