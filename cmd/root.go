package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/rdjellab/mongosnap/internal/config"
	"github.com/rdjellab/mongosnap/internal/logger"
	"github.com/rdjellab/mongosnap/internal/mongodb"
	"github.com/rdjellab/mongosnap/internal/vault"
)

var (
	cfgFile string
	uriFlag string

	cfg config.Config
	log logger.Logger

	// rootCmd is the base command for mongosnap.
	rootCmd = &cobra.Command{
		Use:   "mongosnap",
		Short: "Backup and restore MongoDB collections as portable JSON",
		Long: `mongosnap exports MongoDB collections to a directory of JSON
files and imports them back, preserving ObjectIds, datetimes and
binary values across the round trip.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(cfgFile); err != nil {
				return err
			}
			if uriFlag != "" {
				cfg.URI = uriFlag
			}
			var err error
			log, err = logger.Init(logger.Options{
				Level: cfg.Log.Level,
				File:  cfg.Log.File,
			})
			return err
		},
	}
)

// Execute runs the root command.
func Execute() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		logger.Cleanup()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().
		StringVar(&uriFlag, "uri", "", "MongoDB connection URI (overrides config and MONGOSNAP_URI)")
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(listCmd)
}

// connect resolves the connection URI, through Vault when configured, and
// dials the deployment.
func connect(ctx context.Context) (*mongodb.Client, error) {
	uri, err := resolveURI(ctx)
	if err != nil {
		return nil, err
	}
	return mongodb.Connect(ctx, mongodb.Options{URI: uri, Log: log})
}

// resolveURI injects Vault-issued credentials into the configured URI when a
// vault section is present; otherwise the URI is used as written.
func resolveURI(ctx context.Context) (string, error) {
	if cfg.Vault.Address == "" || cfg.Vault.RolePath == "" {
		return cfg.URI, nil
	}

	vc, err := vault.NewClient(ctx,
		vault.WithAddress(cfg.Vault.Address),
		vault.WithAppRole(cfg.Vault.RoleID, cfg.Vault.RoleName),
	)
	if err != nil {
		return "", fmt.Errorf("vault client init: %w", err)
	}
	creds, err := vc.GetDynamicCredentials(ctx, cfg.Vault.RolePath)
	if err != nil {
		return "", fmt.Errorf("vault read: %w", err)
	}

	u, err := url.Parse(cfg.URI)
	if err != nil {
		return "", fmt.Errorf("parse connection uri: %w", err)
	}
	u.User = url.UserPassword(creds.Username, creds.Password)
	return u.String(), nil
}
