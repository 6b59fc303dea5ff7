package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/cobra"
	cobraDoc "github.com/spf13/cobra/doc"

	"github.com/dotsetgreg/jarvisctl/pkg/config"
)

func newDocsCommand(rootFactory func() *cobra.Command) *cobra.Command {
	docsRoot := &cobra.Command{
		Use:    "docs",
		Short:  "Internal docs maintenance commands",
		Hidden: true,
	}

	var (
		outputDir string
		checkOnly bool
	)

	gen := &cobra.Command{
		Use:   "generate",
		Short: "Generate reference docs from command and config source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(outputDir) == "" {
				return fmt.Errorf("--output must not be empty")
			}
			return generateDocumentation(rootFactory, outputDir, checkOnly)
		},
	}
	gen.Flags().StringVar(&outputDir, "output", "docs", "Docs directory root")
	gen.Flags().BoolVar(&checkOnly, "check", false, "Fail if generated docs are out of date")

	docsRoot.AddCommand(gen)
	return docsRoot
}

func generateDocumentation(rootFactory func() *cobra.Command, outputDir string, checkOnly bool) error {
	tmpDir, err := os.MkdirTemp("", "jarvisctl-docs-gen-*")
	if err != nil {
		return fmt.Errorf("create temp docs dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	generatedRoots, err := writeGeneratedReferences(rootFactory, tmpDir)
	if err != nil {
		return err
	}

	if checkOnly {
		for _, rel := range generatedRoots {
			if err := comparePath(filepath.Join(tmpDir, rel), filepath.Join(outputDir, rel), rel); err != nil {
				return err
			}
		}
		return nil
	}

	for _, rel := range generatedRoots {
		src := filepath.Join(tmpDir, rel)
		dst := filepath.Join(outputDir, rel)
		if err := copyPath(src, dst); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return nil
}

func writeGeneratedReferences(rootFactory func() *cobra.Command, outDir string) ([]string, error) {
	cliRoot := rootFactory()
	markCommandsForDocgen(cliRoot)

	cliDir := filepath.Join(outDir, "reference", "cli")
	if err := os.MkdirAll(cliDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cli docs dir: %w", err)
	}
	prepender := func(filename string) string {
		title := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		title = strings.ReplaceAll(title, "_", " ")
		return fmt.Sprintf("# %s\n\n", strings.TrimSpace(title))
	}
	linkHandler := func(name string) string {
		return name
	}
	if err := cobraDoc.GenMarkdownTreeCustom(cliRoot, cliDir, prepender, linkHandler); err != nil {
		return nil, fmt.Errorf("generate cli markdown docs: %w", err)
	}

	manDir := filepath.Join(outDir, "reference", "man")
	if err := os.MkdirAll(manDir, 0o755); err != nil {
		return nil, fmt.Errorf("create man docs dir: %w", err)
	}
	header := &cobraDoc.GenManHeader{
		Title:   "JARVISCTL",
		Section: "1",
		Source:  "jarvisctl",
	}
	if err := cobraDoc.GenManTree(cliRoot, header, manDir); err != nil {
		return nil, fmt.Errorf("generate man pages: %w", err)
	}

	configRef, err := buildConfigReferenceMarkdown()
	if err != nil {
		return nil, err
	}
	if err := writeDocFile(filepath.Join(outDir, "reference", "config.md"), configRef); err != nil {
		return nil, err
	}

	return []string{
		filepath.Join("reference", "cli"),
		filepath.Join("reference", "man"),
		filepath.Join("reference", "config.md"),
	}, nil
}

func markCommandsForDocgen(cmd *cobra.Command) {
	cmd.DisableAutoGenTag = true
	for _, child := range cmd.Commands() {
		if child.Name() == "docs" {
			continue
		}
		markCommandsForDocgen(child)
	}
}

func buildConfigReferenceMarkdown() (string, error) {
	defaults, err := json.MarshalIndent(config.DefaultConfig(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Configuration reference\n\n")
	b.WriteString("Configuration lives at `~/.jarvisctl/config.json`. Every field can\n")
	b.WriteString("also be set via an environment variable, which takes precedence.\n\n")
	b.WriteString("## Defaults\n\n```json\n")
	b.Write(defaults)
	b.WriteString("\n```\n\n## Environment variables\n\n")
	b.WriteString("| Variable | Config field |\n")
	b.WriteString("|----------|--------------|\n")

	var walk func(t reflect.Type, jsonPath string)
	walk = func(t reflect.Type, jsonPath string) {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			name := strings.Split(field.Tag.Get("json"), ",")[0]
			if name == "" {
				name = field.Name
			}
			path := name
			if jsonPath != "" {
				path = jsonPath + "." + name
			}
			if field.Type.Kind() == reflect.Struct && field.Type.Name() != "FlexibleStringSlice" {
				walk(field.Type, path)
				continue
			}
			if envVar := field.Tag.Get("env"); envVar != "" {
				fmt.Fprintf(&b, "| `%s` | `%s` |\n", envVar, path)
			}
		}
	}
	walk(reflect.TypeOf(config.Config{}), "")

	return b.String(), nil
}

func writeDocFile(path string, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", path, err)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		_ = os.RemoveAll(dst)
		if err := os.MkdirAll(dst, 0o755); err != nil {
			return err
		}
		return filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			target := filepath.Join(dst, rel)
			if d.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			return copyDocFile(path, target)
		})
	}
	return copyDocFile(src, dst)
}

func copyDocFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func comparePath(generated, existing, rel string) error {
	genInfo, err := os.Stat(generated)
	if err != nil {
		return err
	}

	if !genInfo.IsDir() {
		return compareDocFile(generated, existing, rel)
	}

	return filepath.WalkDir(generated, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		relInner, err := filepath.Rel(generated, path)
		if err != nil {
			return err
		}
		return compareDocFile(path, filepath.Join(existing, relInner), filepath.Join(rel, relInner))
	})
}

func compareDocFile(generated, existing, rel string) error {
	want, err := os.ReadFile(generated)
	if err != nil {
		return err
	}
	got, err := os.ReadFile(existing)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("docs out of date: %s is missing (run 'jarvisctl docs generate')", rel)
		}
		return err
	}
	if !bytes.Equal(want, got) {
		return fmt.Errorf("docs out of date: %s differs (run 'jarvisctl docs generate')", rel)
	}
	return nil
}
