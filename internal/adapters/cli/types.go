package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "Manage the document type taxonomy",
}

var typesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known document types",
	RunE:  runTypesList,
}

var typesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load document types from a YAML file",
	Long: `Upserts taxonomy entries. The pipeline itself never creates or
deletes types; this command is the only write path. The file should
include the "` + domain.FallbackTypeName + `" fallback entry.`,
	RunE: runTypesImport,
}

var typesImportFile string

func init() {
	typesImportCmd.Flags().StringVarP(&typesImportFile, "file", "f", "", "taxonomy YAML file")
	_ = typesImportCmd.MarkFlagRequired("file")

	typesCmd.AddCommand(typesListCmd)
	typesCmd.AddCommand(typesImportCmd)
	rootCmd.AddCommand(typesCmd)
}

func runTypesList(cmd *cobra.Command, _ []string) error {
	if typeStore == nil {
		return notConfigured("type store")
	}

	types, err := typeStore.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list document types: %w", err)
	}
	if len(types) == 0 {
		cmd.Println("No document types. Load some with \"docpipe types import\".")
		return nil
	}

	cmd.Println("Document types:")
	for i := range types {
		t := &types[i]
		if t.Category != "" {
			cmd.Printf("  %-40s %-20s %s\n", t.Name, t.Category, t.ID)
		} else {
			cmd.Printf("  %-40s %-20s %s\n", t.Name, "-", t.ID)
		}
	}
	cmd.Printf("\nTotal: %d types\n", len(types))
	return nil
}

// taxonomyFile is the import format: a flat list of type entries.
type taxonomyFile struct {
	Types []struct {
		ID       string `yaml:"id"`
		Name     string `yaml:"name"`
		Category string `yaml:"category"`
	} `yaml:"types"`
}

func runTypesImport(cmd *cobra.Command, _ []string) error {
	if typeStore == nil {
		return notConfigured("type store")
	}
	ctx := cmd.Context()

	data, err := os.ReadFile(typesImportFile)
	if err != nil {
		return fmt.Errorf("read taxonomy file: %w", err)
	}
	var file taxonomyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse taxonomy file: %w", err)
	}
	if len(file.Types) == 0 {
		return fmt.Errorf("taxonomy file %s contains no types", typesImportFile)
	}

	imported := 0
	for _, entry := range file.Types {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return fmt.Errorf("taxonomy entry %d has no name", imported+1)
		}
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			// Derived from the name so repeated imports stay idempotent.
			id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("document-type:"+strings.ToLower(name))).String()
		}
		t := &domain.DocumentType{ID: id, Name: name, Category: strings.TrimSpace(entry.Category)}
		if err := typeStore.Upsert(ctx, t); err != nil {
			return fmt.Errorf("upsert type %q: %w", name, err)
		}
		imported++
	}
	cmd.Printf("Imported %d document types.\n", imported)

	if _, err := typeStore.GetByName(ctx, domain.FallbackTypeName); domain.IsKind(err, domain.ErrNotFound) {
		cmd.Printf("Note: no %q entry; unmatched classifier labels will leave documents untyped.\n", domain.FallbackTypeName)
	}
	return nil
}
