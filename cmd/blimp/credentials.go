package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/blimp/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/blimp/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/blimp/internal/application"
	"github.com/ericfisherdev/blimp/internal/config"
	"github.com/ericfisherdev/blimp/internal/domain/model"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage stored user credentials",
		Long: `Operator commands over the credential store used by the server. They
read the same BLIMP_DB_PATH and BLIMP_SECRET_KEY as "blimp serve".`,
	}
	cmd.AddCommand(newCredentialsPutCmd(), newCredentialsListCmd(), newCredentialsRevokeCmd())
	return cmd
}

func newCredentialsPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store a user's credential for an app",
		Long: `Store an access token for a user and app, replacing any previous
credential for the pair.

Example:
  blimp credentials put --user alice --app slack --access-token xoxp-...`,
		Args: cobra.NoArgs,
		RunE: runCredentialsPut,
	}
	cmd.Flags().String("user", "", "User id (required)")
	cmd.Flags().String("app", "", "App name, for example gmail (required)")
	cmd.Flags().String("access-token", "", "OAuth access token (required)")
	cmd.Flags().String("refresh-token", "", "OAuth refresh token")
	cmd.Flags().Duration("expires-in", 0, "Token lifetime from now; 0 means no expiry")
	cmd.Flags().String("scope", "", "Granted scopes, space separated")
	cmd.Flags().String("email", "", "Account email")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func newCredentialsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the apps a user has connected",
		Args:  cobra.NoArgs,
		RunE:  runCredentialsList,
	}
	cmd.Flags().String("user", "", "User id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCredentialsRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Deactivate a user's credential for an app",
		Args:  cobra.NoArgs,
		RunE:  runCredentialsRevoke,
	}
	cmd.Flags().String("user", "", "User id (required)")
	cmd.Flags().String("app", "", "App name (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("app")
	return cmd
}

// withConnections opens the store and runs fn with a ConnectionService over it.
func withConnections(ctx context.Context, fn func(context.Context, *application.ConnectionService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.HasSecretKey() {
		return errors.New("BLIMP_SECRET_KEY must be set to manage credentials")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB(db)

	registry, err := buildRegistry(cfg, upstream.NewTransport(upstream.TransportOptions{}), logger)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, application.NewConnectionService(registry, store, logger))
}

func closeDB(db *sqliteadapter.DB) {
	if err := db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func runCredentialsPut(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	user, _ := flags.GetString("user")
	app, _ := flags.GetString("app")
	token, _ := flags.GetString("access-token")
	refresh, _ := flags.GetString("refresh-token")
	expiresIn, _ := flags.GetDuration("expires-in")
	scope, _ := flags.GetString("scope")
	email, _ := flags.GetString("email")

	req := application.ConnectRequest{
		UserID:       user,
		AppType:      app,
		AccessToken:  token,
		RefreshToken: refresh,
		Scope:        scope,
		Metadata:     model.CredentialMetadata{Email: email},
	}
	if expiresIn > 0 {
		req.Expiry = time.Now().Add(expiresIn).UTC()
	}

	return withConnections(cmd.Context(), func(ctx context.Context, svc *application.ConnectionService) error {
		id, err := svc.Connect(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s credential for %s (id %s)\n", app, user, id)
		return nil
	})
}

func runCredentialsList(cmd *cobra.Command, _ []string) error {
	user, _ := cmd.Flags().GetString("user")

	return withConnections(cmd.Context(), func(ctx context.Context, svc *application.ConnectionService) error {
		apps, err := svc.ConnectedApps(ctx, user)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s has no connected apps\n", user)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(apps, "\n"))
		return nil
	})
}

func runCredentialsRevoke(cmd *cobra.Command, _ []string) error {
	user, _ := cmd.Flags().GetString("user")
	app, _ := cmd.Flags().GetString("app")

	return withConnections(cmd.Context(), func(ctx context.Context, svc *application.ConnectionService) error {
		if err := svc.Disconnect(ctx, user, app); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s credential for %s\n", app, user)
		return nil
	})
}
