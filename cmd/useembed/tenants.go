package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/useembed/useembed/internal/accounts"
	"github.com/useembed/useembed/internal/tenants"
)

var (
	tenantName    string
	ownerEmail    string
	ownerPassword string
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage tenants",
}

var tenantsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a tenant with its owner account",
	RunE:  runTenantsCreate,
}

func init() {
	tenantsCreateCmd.Flags().StringVar(&tenantName, "name", "", "Tenant display name")
	tenantsCreateCmd.Flags().StringVar(&ownerEmail, "owner-email", "", "Owner account email")
	tenantsCreateCmd.Flags().StringVar(&ownerPassword, "owner-password", "", "Owner account password")
	for _, name := range []string{"name", "owner-email", "owner-password"} {
		_ = tenantsCreateCmd.MarkFlagRequired(name)
	}
	tenantsCmd.AddCommand(tenantsCreateCmd)
	rootCmd.AddCommand(tenantsCmd)
}

func runTenantsCreate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadCommandConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	pool, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantService := tenants.NewService(log, tenants.NewPostgresStore(pool))
	accountService := accounts.NewService(log, accounts.NewPostgresStore(pool))
	tenant, account, err := createTenantWithOwner(ctx, log, tenantService, accountService, tenantName, ownerEmail, ownerPassword)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tenant:  %s (%s)\n", tenant.ID, tenant.Slug)
	fmt.Fprintf(out, "owner:   %s\n", account.Email)
	fmt.Fprintf(out, "api key: %s\n", tenant.APIKey)
	return nil
}

// createTenantWithOwner creates the tenant first so the owner account can reference it,
// then links the owner back onto the tenant.
func createTenantWithOwner(ctx context.Context, log *slog.Logger, tenantService *tenants.Service, accountService *accounts.Service, name, email, password string) (tenants.Tenant, accounts.Account, error) {
	tenant, err := tenantService.Create(ctx, name, "")
	if err != nil {
		return tenants.Tenant{}, accounts.Account{}, fmt.Errorf("create tenant: %w", err)
	}
	account, err := accountService.Create(ctx, accounts.CreateInput{
		TenantID: tenant.ID,
		Email:    strings.TrimSpace(email),
		Password: password,
		Role:     accounts.RoleOwner,
	})
	if err != nil {
		return tenants.Tenant{}, accounts.Account{}, fmt.Errorf("create owner account: %w", err)
	}
	if err := tenantService.SetOwner(ctx, tenant.ID, account.ID); err != nil {
		return tenants.Tenant{}, accounts.Account{}, fmt.Errorf("set tenant owner: %w", err)
	}
	tenant.OwnerID = account.ID
	log.Info("tenant bootstrapped", slog.String("tenant_id", tenant.ID), slog.String("owner_id", account.ID))
	return tenant, account, nil
}
