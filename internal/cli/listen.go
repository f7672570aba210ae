package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ndb/internal/discovery"
	"github.com/nerrad567/ndb/internal/infrastructure/mqtt"
	"github.com/nerrad567/ndb/internal/reconcile"
)

// SourceAnnounce marks devices recorded from MQTT announcements.
const SourceAnnounce = "mqtt_announce"

func (a *app) newListenCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Store announcements published over MQTT",
		Long: `Subscribe to {prefix}/announce/# and store every payload.

A payload that is a tag line ("sys=... id=...") also upserts the device it
names. Runs until interrupted, or until --count messages were stored.
Requires mqtt.enabled in the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.MQTT.Enabled {
				return &ExitError{Code: ExitFailure, Message: "MQTT is disabled; set mqtt.enabled in the config"}
			}
			if count < 0 {
				return &ExitError{Code: ExitFailure, Message: "--count must not be negative"}
			}
			return a.withServices(cmd.Context(), func(s *services) error {
				return a.listen(cmd.Context(), s, count)
			})
		},
	}

	cmd.Flags().IntVar(&count, "count", 0, "exit after this many messages (0 runs until interrupted)")
	return cmd
}

func (a *app) listen(ctx context.Context, s *services, count int) error {
	client, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return err
	}
	client.SetLogger(a.log)
	defer client.Close() //nolint:errcheck // best effort on exit

	engine := reconcile.NewEngine(s.db.DB, s.store, s.registry)
	engine.SetLogger(a.log)

	rec := discovery.NewRecorder(s.db.DB, s.store, s.registry)
	rec.SetLogger(a.log)
	rec.SetEventPublisher(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	topic := client.Topics().AllAnnounce()

	err = client.Subscribe(topic, byte(a.cfg.MQTT.QoS), func(t string, payload []byte) error {
		hash, touched, err := engine.Ingest(ctx, payload)
		if err != nil {
			return fmt.Errorf("storing announcement from %s: %w", t, err)
		}

		line := hash
		if touched != nil {
			rec.Announced(*touched, SourceAnnounce)
			line = touched.UID + " " + hash
		}
		select {
		case lines <- line:
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.log.Info("listening for announcements", "topic", topic, "client_id", client.ClientID())

	received := 0
	for {
		select {
		case line := <-lines:
			a.println(line)
			received++
			if count > 0 && received >= count {
				return nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}
