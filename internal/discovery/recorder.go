package discovery

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/ndb/internal/cas"
	"github.com/nerrad567/ndb/internal/device"
	"github.com/nerrad567/ndb/internal/infrastructure/database"
	"github.com/nerrad567/ndb/internal/infrastructure/mqtt"
)

// EventPublisher receives an event for every saved discovery.
type EventPublisher interface {
	PublishDiscovered(ev mqtt.DiscoveryEvent) error
}

// MetricsWriter records a discovery as a time-series point.
type MetricsWriter interface {
	WriteDiscovery(uid, category, source string)
}

// Saved describes a stored discovery.
type Saved struct {
	UID     string
	CASHash string
	Content string
}

// Recorder stores discovered devices: the record document goes to the
// content store and the device row points at it, in one transaction.
// Event and metric sinks are optional and notified after commit.
type Recorder struct {
	db       *sql.DB
	store    *cas.Store
	registry *device.Registry
	events   EventPublisher
	metrics  MetricsWriter
	logger   Logger
}

// NewRecorder creates a recorder. store and registry must share db.
func NewRecorder(db *sql.DB, store *cas.Store, registry *device.Registry) *Recorder {
	return &Recorder{
		db:       db,
		store:    store,
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// SetEventPublisher enables discovery events.
func (r *Recorder) SetEventPublisher(p EventPublisher) {
	r.events = p
}

// SetMetricsWriter enables discovery metrics.
func (r *Recorder) SetMetricsWriter(m MetricsWriter) {
	r.metrics = m
}

// Save stores info as discovered through seed. An empty category leaves
// the stored category unchanged.
func (r *Recorder) Save(ctx context.Context, info *DeviceInfo, seed, label, category string) (*Saved, error) {
	content, err := info.Record(seed, label).Content()
	if err != nil {
		return nil, fmt.Errorf("encoding record for %s: %w", info.UID, err)
	}

	p := device.UpsertParams{
		UID:       info.UID,
		Hostname:  info.Hostname,
		IPAddress: info.IPAddress,
	}
	if category != "" {
		p.DeviceCategory = &category
	}

	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		hash, err := r.store.PutTx(ctx, tx, content)
		if err != nil {
			return err
		}
		p.CASHash = hash
		return r.registry.UpsertTx(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	r.notify(p, SourceWebDeviceInfo)
	return &Saved{UID: info.UID, CASHash: p.CASHash, Content: content}, nil
}

// Announced notifies sinks about a device upserted outside Save, such as
// from an MQTT announcement.
func (r *Recorder) Announced(p device.UpsertParams, source string) {
	r.notify(p, source)
}

func (r *Recorder) notify(p device.UpsertParams, source string) {
	category := deref(p.DeviceCategory)

	if r.events != nil {
		ev := mqtt.DiscoveryEvent{
			UID:       p.UID,
			CASHash:   p.CASHash,
			Hostname:  deref(p.Hostname),
			IPAddress: deref(p.IPAddress),
			Category:  category,
			Source:    source,
		}
		if err := r.events.PublishDiscovered(ev); err != nil {
			r.logger.Warn("publishing discovery event failed", "uid", p.UID, "error", err)
		}
	}
	if r.metrics != nil {
		r.metrics.WriteDiscovery(p.UID, category, source)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
