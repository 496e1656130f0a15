package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/useembed/useembed/internal/registry"
	"github.com/useembed/useembed/internal/secrets"
)

var importTenantID string

var apisCmd = &cobra.Command{
	Use:   "apis",
	Short: "Manage registered APIs",
}

var apisImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update API definitions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIsImport,
}

func init() {
	apisImportCmd.Flags().StringVar(&importTenantID, "tenant", "", "Tenant ID that owns the APIs")
	_ = apisImportCmd.MarkFlagRequired("tenant")
	apisCmd.AddCommand(apisImportCmd)
	rootCmd.AddCommand(apisCmd)
}

func runAPIsImport(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadCommandConfig()
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	defs, err := registry.ParseDefinitions(f)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	pool, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	box, err := secrets.NewBox(cfg.Secrets.EncryptionKey)
	if err != nil {
		return err
	}
	service := registry.NewService(log, registry.NewPostgresStore(pool, box))
	summary, err := service.Import(ctx, importTenantID, defs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d api(s): %d created, %d updated\n", len(defs), summary.Created, summary.Updated)
	return nil
}
