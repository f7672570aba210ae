package cli

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nerrad567/ndb/internal/cas"
	"github.com/nerrad567/ndb/internal/device"
	"github.com/nerrad567/ndb/internal/output"
)

// filterAliases maps shorthand query keys to registry fields.
var filterAliases = map[string]string{
	"category": device.FieldDeviceCategory,
	"ip":       device.FieldIPAddress,
}

func (a *app) newPutCmd() *cobra.Command {
	var (
		uid       string
		text      string
		file      string
		hostname  string
		ipAddress string
		category  string
	)

	cmd := &cobra.Command{
		Use:   "put",
		Short: "Store content and point a device at it",
		Long: `Store content and upsert the device with --uid to reference it.

Attributes that are not given keep their stored values.

Examples:
  ndb put --uid cp-001 --text "sys=feather-a id=cp-001" --hostname feather-a
  ndb put --uid cp-001 --file record.json --ip 192.168.0.10 --category cp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			content := text
			if cmd.Flags().Changed("file") {
				data, err := a.readInput(file)
				if err != nil {
					return failure(err)
				}
				if content, err = cas.TextFromBytes(data); err != nil {
					return failure(err)
				}
			}

			p := device.UpsertParams{UID: uid}
			if cmd.Flags().Changed("hostname") {
				p.Hostname = device.Ptr(hostname)
			}
			if cmd.Flags().Changed("ip-address") {
				p.IPAddress = device.Ptr(ipAddress)
			}
			if cmd.Flags().Changed("category") {
				p.DeviceCategory = device.Ptr(category)
			}
			if err := device.ValidateUID(uid); err != nil {
				return failure(err)
			}

			return a.withServices(cmd.Context(), func(s *services) error {
				err := s.db.WithTx(cmd.Context(), func(tx *sql.Tx) error {
					hash, err := s.store.PutTx(cmd.Context(), tx, content)
					if err != nil {
						return err
					}
					p.CASHash = hash
					return s.registry.UpsertTx(cmd.Context(), tx, p)
				})
				if err != nil {
					return err
				}
				a.println(p.CASHash)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&uid, "uid", "", "device uid")
	f.StringVar(&text, "text", "", "content to store")
	f.StringVar(&file, "file", "", "read content from file")
	f.StringVar(&hostname, "hostname", "", "device hostname")
	f.StringVar(&ipAddress, "ip-address", "", "device IP address")
	f.StringVar(&category, "category", "", "device category")
	f.SetNormalizeFunc(ipAlias)
	_ = cmd.MarkFlagRequired("uid")
	cmd.MarkFlagsOneRequired("text", "file")
	cmd.MarkFlagsMutuallyExclusive("text", "file")
	return cmd
}

// ipAlias accepts --ip for --ip-address.
func ipAlias(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "ip" {
		name = "ip-address"
	}
	return pflag.NormalizedName(name)
}

func (a *app) newLsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List active devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				records, err := s.registry.List(cmd.Context())
				if err != nil {
					return err
				}
				return a.writeDevices(records, asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of a table")
	return cmd
}

func (a *app) newQueryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query KEY=VALUE...",
		Short: "List active devices matching every filter",
		Long: `List active devices whose fields equal every KEY=VALUE given.

Keys: uid, hostname, ip_address (or ip), device_category (or category).

Examples:
  ndb query category=cp
  ndb query hostname=feather-a ip=192.168.0.10 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseFilter(args)
			if err != nil {
				return err
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				records, err := s.registry.Query(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return a.writeDevices(records, asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON instead of a table")
	return cmd
}

// parseFilter turns KEY=VALUE arguments into a registry filter. Field names
// are checked by the registry.
func parseFilter(args []string) (device.Filter, error) {
	filter := device.Filter{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, &ExitError{Code: ExitFailure, Message: "Invalid filter: " + arg}
		}
		if field, ok := filterAliases[key]; ok {
			key = field
		}
		filter[key] = value
	}
	return filter, nil
}

func (a *app) writeDevices(records []device.Record, asJSON bool) error {
	if asJSON {
		return output.WriteJSON(a.stdout, output.DeviceRows(records))
	}
	return output.WriteDeviceTable(a.stdout, records)
}

func (a *app) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get UID",
		Short: "Print the content a device references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				_, content, err := s.registry.GetRaw(cmd.Context(), args[0])
				if errors.Is(err, device.ErrDeviceNotFound) {
					return notFound(args[0])
				}
				if err != nil {
					return err
				}
				return output.WriteContent(a.stdout, content)
			})
		},
	}
}

func (a *app) newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm UID",
		Short: "Delete a device",
		Long:  `Soft-delete a device. Its content stays in the store and counts as an orphan until another device references it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd.Context(), func(s *services) error {
				err := s.registry.Delete(cmd.Context(), args[0])
				if errors.Is(err, device.ErrDeviceNotFound) {
					return notFound(args[0])
				}
				if err != nil {
					return err
				}
				a.println("Deleted " + args[0])
				return nil
			})
		},
	}
}
