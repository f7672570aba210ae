package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/ndb/internal/cas"
	"github.com/nerrad567/ndb/internal/device"
	"github.com/nerrad567/ndb/internal/infrastructure/database"
	_ "github.com/nerrad567/ndb/migrations"
)

type testEnv struct {
	store    *cas.Store
	registry *device.Registry
	engine   *Engine
}

// setupTestEngine opens a migrated temp-dir database with all three layers.
func setupTestEngine(t *testing.T) testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "reconcile.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	store := cas.NewStore(db.DB)
	reg := device.NewRegistry(db.DB)
	return testEnv{store: store, registry: reg, engine: NewEngine(db.DB, store, reg)}
}

func (env testEnv) put(t *testing.T, content string) string {
	t.Helper()
	hash, err := env.store.Put(context.Background(), content)
	if err != nil {
		t.Fatalf("Put(%q) error = %v", content, err)
	}
	return hash
}

func TestRefresh_SingleTagLine(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	hash := env.put(t, "sys=feather-a id=cp-001 ip=192.168.0.10 category=cp")

	updates, err := env.engine.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(updates) != 1 || updates[0] != (Update{UID: "cp-001", CASHash: hash}) {
		t.Fatalf("Refresh() = %+v, want [{cp-001 %s}]", updates, hash)
	}

	rec, err := env.registry.Get(ctx, "cp-001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.Field(device.FieldHostname) != "feather-a" ||
		rec.Field(device.FieldIPAddress) != "192.168.0.10" ||
		rec.Field(device.FieldDeviceCategory) != "cp" ||
		rec.CASHash != hash {
		t.Errorf("record = %+v", rec)
	}
}

// TestRefresh_FiveDevices stores five synthetic snapshots, reconciles and
// checks listing and category queries.
func TestRefresh_FiveDevices(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	for _, line := range []string{
		"sys=feather-a id=cp-001 ip=192.168.0.10 category=cp",
		"sys=feather-b id=cp-002 ip=192.168.0.11 category=cp",
		"sys=esp-c id=esp-003 ip=10.0.0.5 category=esp",
		"sys=misc-d id=misc-004 ip=192.168.0.40 category=misc",
		"sys=unlabeled-e id=unlabeled-005",
	} {
		env.put(t, line)
	}
	env.put(t, `{"note": "not a tag line"}`)

	updates, err := env.engine.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(updates) != 5 {
		t.Fatalf("Refresh() touched %d devices, want 5", len(updates))
	}
	for i := 1; i < len(updates); i++ {
		if updates[i-1].CASHash >= updates[i].CASHash {
			t.Errorf("updates not in hash order: %s before %s", updates[i-1].CASHash, updates[i].CASHash)
		}
	}

	all, err := env.registry.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("List() returned %d records, want 5", len(all))
	}

	cps, err := env.registry.Query(ctx, device.Filter{device.FieldDeviceCategory: "cp"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(cps) != 2 || cps[0].UID != "cp-001" || cps[1].UID != "cp-002" {
		t.Errorf("Query(category=cp) = %+v, want cp-001 and cp-002", cps)
	}

	byIP, err := env.registry.Query(ctx, device.Filter{device.FieldIPAddress: "10.0.0.5"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(byIP) != 1 || byIP[0].UID != "esp-003" {
		t.Errorf("Query(ip=10.0.0.5) = %+v, want esp-003", byIP)
	}

	status, err := env.registry.Status(ctx, device.StatusOptions{})
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.OrphansCount != 1 {
		t.Errorf("OrphansCount = %d, want 1 (the non-tag entry)", status.OrphansCount)
	}
}

func TestRefresh_Skips(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.put(t, "sys= hostname=nameless")        // no uid
	env.put(t, "SYS=upper id=u-1")              // prefix is case sensitive
	env.put(t, "  sys=indented id=u-2")         // must start at the first character
	env.put(t, "hostname=h id=u-3\nsys=second") // tag on second line only

	updates, err := env.engine.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(updates) != 0 {
		t.Errorf("Refresh() = %+v, want no updates", updates)
	}
}

func TestRefresh_LongValues(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	longHost := strings.Repeat("h", 300)
	longUID := strings.Repeat("u", 200)
	h1 := env.put(t, "sys="+longHost+" id=cp-long ip=10.0.0.1")
	h2 := env.put(t, "sys=short id="+longUID)

	updates, err := env.engine.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("Refresh() = %+v, want 2 updates", updates)
	}

	rec, err := env.registry.Get(ctx, "cp-long")
	if err != nil {
		t.Fatalf("Get(cp-long) error = %v", err)
	}
	if rec.Field(device.FieldHostname) != longHost || rec.CASHash != h1 {
		t.Errorf("record = %+v, want 300-character hostname and hash %s", rec, h1)
	}

	rec, err = env.registry.Get(ctx, longUID)
	if err != nil {
		t.Fatalf("Get(long uid) error = %v", err)
	}
	if rec.CASHash != h2 {
		t.Errorf("CASHash = %s, want %s", rec.CASHash, h2)
	}
}

func TestRefresh_MergesIntoExisting(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	h0 := env.put(t, "manual payload")
	err := env.registry.Upsert(ctx, device.UpsertParams{
		UID: "cp-001", CASHash: h0, Hostname: device.Ptr("bench-name"), DeviceCategory: device.Ptr("cp"),
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	h1 := env.put(t, "sys=feather-a id=cp-001 ip=192.168.0.10")
	if _, err := env.engine.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	rec, err := env.registry.Get(ctx, "cp-001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	// sys supplies the hostname, so it overwrites; category is absent and kept.
	if rec.Field(device.FieldHostname) != "feather-a" || rec.Field(device.FieldDeviceCategory) != "cp" {
		t.Errorf("record = %+v", rec)
	}
	if rec.CASHash != h1 {
		t.Errorf("CASHash = %s, want %s", rec.CASHash, h1)
	}
}

func TestRefresh_DeletedDeviceGetsFreshRecord(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	h0 := env.put(t, "old payload")
	if err := env.registry.Upsert(ctx, device.UpsertParams{UID: "cp-001", CASHash: h0, DeviceCategory: device.Ptr("old")}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := env.registry.Delete(ctx, "cp-001"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	env.put(t, "sys=feather-a id=cp-001")
	if _, err := env.engine.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	rec, err := env.registry.Get(ctx, "cp-001")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec.DeviceCategory != nil {
		t.Errorf("DeviceCategory = %q, deleted value merged back", *rec.DeviceCategory)
	}
}

func TestRefresh_IsIdempotent(t *testing.T) {
	env := setupTestEngine(t)
	ctx := context.Background()

	env.put(t, "sys=feather-a id=cp-001 category=cp")
	env.put(t, "sys=feather-b id=cp-002 category=cp")

	first, err := env.engine.Refresh(ctx)
	if err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	second, err := env.engine.Refresh(ctx)
	if err != nil {
		t.Fatalf("second Refresh() error = %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("Refresh() lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("update %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}

	all, err := env.registry.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d records, want 2", len(all))
	}
}

func TestRefresh_CanceledContext(t *testing.T) {
	env := setupTestEngine(t)
	env.put(t, "sys=feather-a id=cp-001")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.engine.Refresh(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Refresh() error = %v, want context.Canceled", err)
	}

	all, err := env.registry.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("List() returned %d records after canceled refresh", len(all))
	}
}

func TestIngest(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantDevice string
	}{
		{"tag line", "sys=feather-a id=cp-001 category=cp", "cp-001"},
		{"plain note", "hello from the bench", ""},
		{"tag line without uid", "sys= category=cp", ""},
		{"control character in uid", "sys=x id=bad\x01uid", "bad\x01uid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestEngine(t)
			ctx := context.Background()

			hash, p, err := env.engine.Ingest(ctx, []byte(tt.payload))
			if err != nil {
				t.Fatalf("Ingest() error = %v", err)
			}
			if hash != cas.Hash(tt.payload) {
				t.Errorf("Ingest() hash = %s, want %s", hash, cas.Hash(tt.payload))
			}
			if entries, _ := env.store.Get(ctx, hash); len(entries) != 1 {
				t.Errorf("payload not stored")
			}

			if tt.wantDevice == "" {
				if p != nil {
					t.Errorf("Ingest() touched %q, want no device", p.UID)
				}
				return
			}
			if p == nil || p.UID != tt.wantDevice {
				t.Fatalf("Ingest() params = %+v, want uid %s", p, tt.wantDevice)
			}
			rec, err := env.registry.Get(ctx, tt.wantDevice)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if rec.CASHash != hash {
				t.Errorf("CASHash = %s, want %s", rec.CASHash, hash)
			}
		})
	}
}

func TestIngest_RejectsBinary(t *testing.T) {
	env := setupTestEngine(t)

	_, _, err := env.engine.Ingest(context.Background(), []byte{0xff, 0xfe, 0x00})
	if !errors.Is(err, cas.ErrTypeMismatch) {
		t.Errorf("Ingest() error = %v, want ErrTypeMismatch", err)
	}
	if n, _ := env.store.Count(context.Background()); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}
