package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/freightrates/internal/app"
	"github.com/bher20/freightrates/internal/entitlement"
	"github.com/bher20/freightrates/internal/locations"
	"github.com/bher20/freightrates/internal/migrate"
	"github.com/bher20/freightrates/internal/rates"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQL schema (sqlite, postgres, postgrespool)",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return migrate.Up(cmd.Context(), cfg.Storage.Driver, cfg.Storage.DSN)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				return migrate.Down(cmd.Context(), cfg.Storage.Driver, cfg.Storage.DSN)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print applied and pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				if err := migrate.Status(cmd.Context(), cfg.Storage.Driver, cfg.Storage.DSN); err != nil {
					return err
				}
				v, err := migrate.Version(cmd.Context(), cfg.Storage.Driver, cfg.Storage.DSN)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version: %d\n", v)
				return nil
			},
		},
	)
	return cmd
}

func newQuoteCmd() *cobra.Command {
	var (
		userID string
		mode   string
	)
	cmd := &cobra.Command{
		Use:   "quote ORIGIN DESTINATION",
		Short: "Resolve one lane and print the quote as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var m locations.Mode
			if mode != "" {
				var ok bool
				if m, ok = locations.ParseMode(mode); !ok {
					return fmt.Errorf("quote: unknown mode %q", mode)
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			q := a.Rates.ResolveLane(cmd.Context(), rates.LaneRequest{
				Origin:      args[0],
				Destination: args[1],
				UserID:      userID,
				Mode:        m,
			})
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(q)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id to resolve for (empty is a guest)")
	cmd.Flags().StringVar(&mode, "mode", "", "shipment mode: sea or air")
	return cmd
}

// newEntitlementsCmd manages casbin grants stored in the configured backend.
func newEntitlementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entitlements",
		Short: "Grant, revoke and check live-rate entitlements (casbin mode)",
	}

	run := func(fn func(cmd *cobra.Command, e *entitlement.Enforcer, userID string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			switch cfg.Storage.Driver {
			case "memory", "none":
				return fmt.Errorf("entitlements: driver %q does not persist grants; set FREIGHTRATES_DB_DRIVER to sqlite, postgres, postgrespool or redis", cfg.Storage.Driver)
			}
			cfg.Entitlement.Mode = "casbin"
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd, a.Enforcer, args[0])
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "grant USER",
			Short: "Grant the subscriber role",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, e *entitlement.Enforcer, userID string) error {
				return e.Grant(cmd.Context(), userID)
			}),
		},
		&cobra.Command{
			Use:   "revoke USER",
			Short: "Revoke the subscriber role",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, e *entitlement.Enforcer, userID string) error {
				return e.Revoke(cmd.Context(), userID)
			}),
		},
		&cobra.Command{
			Use:   "check USER",
			Short: "Print whether USER holds an entitlement",
			Args:  cobra.ExactArgs(1),
			RunE: run(func(cmd *cobra.Command, e *entitlement.Enforcer, userID string) error {
				ok, err := e.HasEntitlement(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			}),
		},
	)
	return cmd
}
