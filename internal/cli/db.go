package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ndb/internal/device"
	"github.com/nerrad567/ndb/internal/output"
	"github.com/nerrad567/ndb/internal/reconcile"
)

func (a *app) newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database related commands",
	}
	cmd.AddCommand(a.newDBInitCmd(), a.newDBStatusCmd(), a.newDBRefreshCmd())
	return cmd
}

func (a *app) newDBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				version, err := s.db.SchemaVersion(cmd.Context())
				if err != nil {
					return err
				}
				a.log.Info("database initialized", "path", s.db.Path(), "schema_version", version)
				a.println("Initialized database at " + s.db.Path())
				return nil
			})
		},
	}
}

func (a *app) newDBStatusCmd() *cobra.Command {
	var (
		asJSON      bool
		showOrphans bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database health report",
		Long: `Show device, content and orphan counts.

An orphan is a stored entry that no active device points at.

Examples:
  ndb db status
  ndb db status --show-orphans
  ndb db status -v --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := device.StatusOptions{
				IncludeOrphans:      showOrphans || verbose,
				IncludeDeviceHashes: verbose,
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				rep, err := s.registry.Status(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if asJSON {
					return output.WriteJSON(a.stdout, rep)
				}
				return output.WriteStatus(a.stdout, s.db.Path(), rep)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of text")
	cmd.Flags().BoolVar(&showOrphans, "show-orphans", false, "include orphan hashes in the report")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list device hashes and orphan hashes")
	return cmd
}

func (a *app) newDBRefreshCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild device records from stored tag lines",
		Long: `Scan every stored entry starting with "sys=" and upsert the device it names.

A tag line is a single line of space separated key=value pairs:
  sys=feather-a id=cp-001 ip=192.168.0.10 category=cp

The uid comes from id, uid or sys; hostname from hostname or sys; ip from
ip or ip_address; category from category or device_category.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				engine := reconcile.NewEngine(s.db.DB, s.store, s.registry)
				engine.SetLogger(a.log)

				updates, err := engine.Refresh(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return output.WriteJSON(a.stdout, updates)
				}
				for _, u := range updates {
					fmt.Fprintf(a.stdout, "%s %s\n", u.UID, u.CASHash)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of text")
	return cmd
}
