// Package device provides the device registry for ndb.
//
// The registry maps a stable, caller-supplied device UID to the latest
// known attributes of that device (hostname, IP address, category) and a
// hash pointing at the raw record in the content store (package cas).
//
// # Upsert semantics
//
// Upsert first updates the active row for the UID, applying
// COALESCE(new, old) per optional column so that a nil field keeps the
// stored value. If no active row was affected, a fresh record is inserted.
// A soft-deleted row occupying the UID is replaced by that fresh record;
// its old values are not merged back. Both steps run in one transaction.
//
// # Soft deletion and orphans
//
// Delete only sets deleted_at. Deleted rows are hidden from Query, List,
// Get and GetRaw but stay in storage. Content entries referenced by no
// active device are reported as orphans by Status.
//
// # Usage
//
//	reg := device.NewRegistry(db.DB)
//	reg.SetLogger(log)
//
//	hash, _ := store.Put(ctx, payload)
//	err := reg.Upsert(ctx, device.UpsertParams{
//	    UID:      "cp-001",
//	    CASHash:  hash,
//	    Hostname: device.Ptr("feather-a"),
//	})
//
//	cps, err := reg.Query(ctx, device.Filter{device.FieldDeviceCategory: "cp"})
package device
