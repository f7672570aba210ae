package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ndb/internal/discovery"
	"github.com/nerrad567/ndb/internal/infrastructure/influxdb"
	"github.com/nerrad567/ndb/internal/infrastructure/mqtt"
)

type discoverOptions struct {
	from         string
	mdns         bool
	label        string
	category     string
	dryRun       bool
	timeout      float64
	retries      int
	raw          bool
	debug        bool
	password     string
	mdnsDuration float64
}

func (a *app) newDiscoverCmd() *cobra.Command {
	var o discoverOptions

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Record CircuitPython boards found on the network",
		Long: `Read /cp/version.json from a board's web workflow and record the device.

With --from a single host is queried. With --mdns the local network is
browsed for _circuitpython._tcp and _http._tcp services and every board
found is queried.

The Web API password comes from --password, discovery.password or
CIRCUITPY_WEB_API_PASSWORD.

Examples:
  ndb discover --from 192.168.0.10
  ndb discover --from feather.local:8080 --label bench --dry-run
  ndb discover --mdns --mdns-duration 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("category") {
				o.category = a.cfg.Discovery.Category
			}
			if !cmd.Flags().Changed("password") {
				o.password = a.cfg.Discovery.Password
			}
			if !cmd.Flags().Changed("timeout") {
				o.timeout = a.cfg.Discovery.Timeout.Seconds()
			}
			if !cmd.Flags().Changed("retries") {
				o.retries = a.cfg.Discovery.Retries
			}
			if !cmd.Flags().Changed("mdns-duration") {
				o.mdnsDuration = a.cfg.Discovery.MDNSDuration.Seconds()
			}
			if o.timeout <= 0 || o.retries < 0 || o.mdnsDuration <= 0 {
				return &ExitError{Code: ExitFailure, Message: "--timeout and --mdns-duration must be positive and --retries not negative"}
			}

			fetcher := discovery.NewFetcher(discovery.FetcherConfig{
				Timeout:   seconds(o.timeout),
				Retries:   o.retries,
				Password:  o.password,
				UserAgent: "ndb/" + a.version,
			})
			fetcher.SetLogger(a.log)

			if o.mdns {
				return a.discoverMDNS(cmd.Context(), fetcher, o)
			}
			return a.discoverSeed(cmd.Context(), fetcher, o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.from, "from", "", "seed host, HOST or HOST:PORT")
	f.BoolVar(&o.mdns, "mdns", false, "browse mDNS for boards")
	f.StringVar(&o.label, "label", "", "label stored with the record")
	f.StringVar(&o.category, "category", "", "device category (default discovery.category, \"cp\")")
	f.BoolVar(&o.dryRun, "dry-run", false, "print the record without storing it")
	f.Float64Var(&o.timeout, "timeout", 3, "HTTP timeout in seconds")
	f.IntVar(&o.retries, "retries", 0, "extra attempts after a failed fetch")
	f.BoolVar(&o.raw, "raw", false, "print the raw response body")
	f.BoolVar(&o.debug, "debug", false, "print fetch diagnostics to stderr")
	f.StringVar(&o.password, "password", "", "CircuitPython Web API password")
	f.Float64Var(&o.mdnsDuration, "mdns-duration", 3, "mDNS browse time in seconds")
	cmd.MarkFlagsOneRequired("from", "mdns")
	cmd.MarkFlagsMutuallyExclusive("from", "mdns")
	return cmd
}

func (a *app) discoverSeed(ctx context.Context, fetcher *discovery.Fetcher, o discoverOptions) error {
	res, err := fetcher.Fetch(ctx, o.from)
	if errors.Is(err, discovery.ErrParse) {
		if o.debug {
			fmt.Fprintf(a.stderr, "Fetched %s but parsing failed\n", res.URL)
		}
		if o.raw {
			a.printRaw(res)
		}
		return &ExitError{Code: ExitFailure, Message: "Failed to parse device info from " + o.from, Err: err}
	}
	if err != nil {
		if o.debug {
			fmt.Fprintf(a.stderr, "%v\n", err)
		}
		return &ExitError{Code: ExitFailure, Message: "Failed to fetch device info from " + o.from, Err: err}
	}

	if o.raw {
		a.printRaw(res)
	}
	if o.dryRun {
		content, err := res.Info.Record(o.from, o.label).Content()
		if err != nil {
			return failure(err)
		}
		a.println(content)
		return nil
	}

	return a.withRecorder(ctx, func(rec *discovery.Recorder) error {
		saved, err := rec.Save(ctx, res.Info, o.from, o.label, o.category)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s %s\n", saved.UID, saved.CASHash)
		return nil
	})
}

func (a *app) discoverMDNS(ctx context.Context, fetcher *discovery.Fetcher, o discoverOptions) error {
	scanner := discovery.NewScanner(discovery.ScannerConfig{
		Duration:     seconds(o.mdnsDuration),
		ServiceTypes: a.cfg.Discovery.ServiceTypes,
		Domain:       a.cfg.Discovery.Domain,
	})
	scanner.SetLogger(a.log)

	services, err := scanner.Scan(ctx)
	if err != nil {
		return failure(fmt.Errorf("mdns scan: %w", err))
	}
	if o.debug {
		fmt.Fprintf(a.stderr, "Found %d mDNS services\n", len(services))
	}

	found := 0
	fetchAll := func(rec *discovery.Recorder) error {
		for _, svc := range services {
			host := svc.Host()
			res, err := fetcher.Fetch(ctx, host)
			if err != nil {
				a.log.Debug("skipping mdns service", "host", host, "name", svc.Name, "error", err)
				if o.debug {
					fmt.Fprintf(a.stderr, "Skipping %s (%s): %v\n", host, svc.Name, err)
				}
				continue
			}
			if o.raw {
				a.printRaw(res)
			}

			if o.dryRun {
				content, err := res.Info.Record(host, o.label).Content()
				if err != nil {
					return err
				}
				a.println(content)
				found++
				continue
			}

			saved, err := rec.Save(ctx, res.Info, host, o.label, o.category)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %s %s\n", saved.UID, saved.CASHash, host)
			found++
		}
		return nil
	}
	if o.dryRun {
		err = failure(fetchAll(nil))
	} else {
		err = a.withRecorder(ctx, fetchAll)
	}
	if err != nil {
		return err
	}

	if found == 0 && !o.dryRun {
		return &ExitError{Code: ExitFailure, Message: "No devices discovered via mDNS"}
	}
	return nil
}

// withRecorder opens the database and the optional event and metrics sinks
// for the duration of fn. Sinks that fail to connect are skipped.
func (a *app) withRecorder(ctx context.Context, fn func(rec *discovery.Recorder) error) error {
	return a.withServices(ctx, func(s *services) error {
		rec := discovery.NewRecorder(s.db.DB, s.store, s.registry)
		rec.SetLogger(a.log)

		if a.cfg.MQTT.Enabled {
			client, err := mqtt.Connect(a.cfg.MQTT)
			if err != nil {
				a.log.Warn("discovery events disabled", "error", err)
			} else {
				client.SetLogger(a.log)
				defer client.Close() //nolint:errcheck // best effort on exit
				rec.SetEventPublisher(client)
			}
		}

		if a.cfg.InfluxDB.Enabled {
			client, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
			if err != nil {
				a.log.Warn("discovery metrics disabled", "error", err)
			} else {
				client.SetOnError(func(err error) {
					a.log.Warn("discovery metrics write failed", "error", err)
				})
				defer client.Close() //nolint:errcheck // best effort on exit
				rec.SetMetricsWriter(client)
			}
		}

		return fn(rec)
	})
}

func (a *app) printRaw(res *discovery.Result) {
	fmt.Fprintf(a.stdout, "# Raw from %s\n", res.URL)
	a.println(res.Body)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
