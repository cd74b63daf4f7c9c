package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/ai-dev-relay/internal/core"
	"github.com/valter-silva-au/ai-dev-relay/internal/storage"
	"gopkg.in/yaml.v3"
)

var (
	initForce bool
	initType  string
)

var initCmd = &cobra.Command{
	Use:   "init [task-title...]",
	Short: "Create .relayconfig and the shared workflow documents",
	Long: `Write a default .relayconfig (unless one exists) and create the plan,
progress, dependency and execution-log documents. Each argument becomes one
planned task, numbered from 1.

Existing documents are never overwritten unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Docs == nil {
			return fmt.Errorf("document store not initialized")
		}
		if initType != "" {
			if _, ok := core.LookupEcosystem(initType); !ok {
				return &core.ValidationError{
					Artifact: "--type",
					Problem:  fmt.Sprintf("unknown project type %q", initType),
					Remedy:   "use one of " + strings.Join(core.EcosystemNames(), ", "),
				}
			}
		}

		w := cmd.OutOrStdout()
		cfgPath := filepath.Join(BasePath, core.ConfigFileName)
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			cfg := core.DefaultConfig()
			cfg.Project.Type = initType
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding %s: %w", core.ConfigFileName, err)
			}
			if err := os.WriteFile(cfgPath, data, 0o644); err != nil { //nolint:gosec // G306: config is not secret
				return fmt.Errorf("writing %s: %w", core.ConfigFileName, err)
			}
			fmt.Fprintf(w, "Created %s\n", cfgPath)
		} else if initType != "" {
			fmt.Fprintf(w, "%s exists; --type ignored\n", cfgPath)
		}

		err := storage.InitializeDocuments(Docs, args, time.Now(), initForce)
		if errors.Is(err, storage.ErrDocumentExists) {
			return &core.ValidationError{
				Artifact: "workflow documents",
				Problem:  err.Error(),
				Remedy:   "rerun with --force to overwrite them",
			}
		}
		if err != nil {
			return err
		}
		for _, name := range documentNames() {
			fmt.Fprintf(w, "Created %s\n", Docs.Path(storage.DocumentName(name)))
		}
		fmt.Fprintf(w, "\nInitialized %d task(s) at %s\n", len(args), BasePath)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing documents")
	initCmd.Flags().StringVar(&initType, "type", "", "Project type for extension and manifest checks (go, node, python, rust, java)")
	rootCmd.AddCommand(initCmd)
}
