package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	coreconfig "github.com/AzielCF/az-post/core/config"
	identity "github.com/AzielCF/az-post/identity/domain"
	tenants "github.com/AzielCF/az-post/tenants/domain"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenant records and their contributors",
}

var tenantApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or replace a tenant from a JSON file",
	Run:   tenantApply,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tenants",
	Run:   tenantList,
}

var tenantAddIdentityCmd = &cobra.Command{
	Use:   "add-identity",
	Short: "Register a contributor or approver for a tenant",
	Run:   tenantAddIdentity,
}

func init() {
	tenantApplyCmd.Flags().StringP("file", "f", "", "tenant JSON file")
	tenantApplyCmd.Flags().String("page-token", "", "Facebook page token (defaults to FACEBOOK_PAGE_TOKEN)")
	_ = tenantApplyCmd.MarkFlagRequired("file")

	f := tenantAddIdentityCmd.Flags()
	f.String("tenant", "", "tenant id")
	f.String("name", "", "display name")
	f.String("phone", "", "phone number in E.164 form")
	f.String("chat-id", "", "WhatsApp JID")
	f.String("instagram", "", "Instagram handle")
	f.String("role", string(identity.RoleContributor), "contributor | approver")
	f.Bool("consent", false, "record consent as already granted")
	_ = tenantAddIdentityCmd.MarkFlagRequired("tenant")
	_ = tenantAddIdentityCmd.MarkFlagRequired("name")

	tenantCmd.AddCommand(tenantApplyCmd, tenantListCmd, tenantAddIdentityCmd)
	rootCmd.AddCommand(tenantCmd)
}

func withApplication(run func(ctx context.Context, app *application) error) {
	ctx := context.Background()
	app, err := buildApplication(ctx, coreconfig.Global)
	if err != nil {
		logrus.Fatalf("[TENANT] %v", err)
	}
	defer app.Close()
	if err := app.migrate(ctx); err != nil {
		logrus.Fatalf("[TENANT] %v", err)
	}
	if err := run(ctx, app); err != nil {
		logrus.Fatalf("[TENANT] %v", err)
	}
}

func tenantApply(cmd *cobra.Command, _ []string) {
	path, _ := cmd.Flags().GetString("file")
	token, _ := cmd.Flags().GetString("page-token")
	if token == "" {
		token = os.Getenv("FACEBOOK_PAGE_TOKEN")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		logrus.Fatalf("[TENANT] read %s: %v", path, err)
	}
	var t tenants.Tenant
	if err := json.Unmarshal(raw, &t); err != nil {
		logrus.Fatalf("[TENANT] parse %s: %v", path, err)
	}

	withApplication(func(ctx context.Context, app *application) error {
		if existing, err := app.tenants.FindByID(ctx, t.ID); err == nil {
			t.CreatedAt = existing.CreatedAt
			if token == "" {
				token = existing.FacebookPageToken
			}
		}
		t.FacebookPageToken = token
		if err := app.tenants.Save(ctx, &t); err != nil {
			return err
		}
		app.policies.Invalidate(t.ID)
		logrus.Infof("[TENANT] saved %s (%s)", t.ID, t.Name)
		return nil
	})
}

func tenantList(_ *cobra.Command, _ []string) {
	withApplication(func(ctx context.Context, app *application) error {
		list, err := app.tenants.List(ctx)
		if err != nil {
			return err
		}
		for _, t := range list {
			window := "default window"
			if t.PostingStart != "" && t.PostingEnd != "" {
				window = t.PostingStart + "-" + t.PostingEnd
			}
			fb := "no page"
			if t.FacebookPageID != "" {
				fb = "page " + t.FacebookPageID
			}
			fmt.Printf("%-20s %-28s %-14s %-24s updated %s\n",
				t.ID, t.Name, window, fb, humanize.Time(t.UpdatedAt))
		}
		return nil
	})
}

func tenantAddIdentity(cmd *cobra.Command, _ []string) {
	f := cmd.Flags()
	tenantID, _ := f.GetString("tenant")
	name, _ := f.GetString("name")
	phone, _ := f.GetString("phone")
	chatID, _ := f.GetString("chat-id")
	handle, _ := f.GetString("instagram")
	role, _ := f.GetString("role")
	consent, _ := f.GetBool("consent")

	if phone == "" && chatID == "" {
		logrus.Fatalln("[TENANT] an identity needs --phone or --chat-id")
	}
	r := identity.Role(strings.ToLower(role))
	if r != identity.RoleContributor && r != identity.RoleApprover {
		logrus.Fatalf("[TENANT] unknown role %q", role)
	}

	withApplication(func(ctx context.Context, app *application) error {
		if _, err := app.tenants.FindByID(ctx, tenantID); err != nil {
			return fmt.Errorf("tenant %s: %w", tenantID, err)
		}
		id := &identity.ContributorIdentity{
			TenantID:        tenantID,
			Name:            name,
			Phone:           phone,
			ChatID:          chatID,
			InstagramHandle: strings.TrimPrefix(handle, "@"),
			Role:            r,
			ConsentGranted:  consent,
		}
		if consent {
			now := time.Now().UTC()
			id.ConsentAt = &now
		}
		if err := app.identityDB.Create(ctx, id); err != nil {
			return err
		}
		logrus.Infof("[TENANT] registered %s %s (%s) for %s", id.Role, id.Name, id.ID, tenantID)
		return nil
	})
}
