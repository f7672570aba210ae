package device

import (
	"encoding/json"
	"time"
)

// Queryable device fields. These are the only keys a Filter may use.
const (
	FieldUID            = "uid"
	FieldHostname       = "hostname"
	FieldIPAddress      = "ip_address"
	FieldDeviceCategory = "device_category"
)

// AllFields returns the queryable fields in column order.
func AllFields() []string {
	return []string{FieldUID, FieldHostname, FieldIPAddress, FieldDeviceCategory}
}

// Record is a registry row: the latest known attributes of one device plus
// a pointer into the content store.
//
// Optional attributes are pointers; nil means the value was never supplied.
type Record struct {
	UID            string  `json:"uid"`
	Hostname       *string `json:"hostname"`
	IPAddress      *string `json:"ip_address"`
	DeviceCategory *string `json:"device_category"`

	// CASHash references the content entry holding the device's raw record.
	// Several devices may share one hash.
	CASHash string `json:"cas_hash"`

	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// DeletedAt is set when the device has been soft-deleted.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Field returns the value of a queryable field, or "" when it is unset.
func (r *Record) Field(name string) string {
	switch name {
	case FieldUID:
		return r.UID
	case FieldHostname:
		return deref(r.Hostname)
	case FieldIPAddress:
		return deref(r.IPAddress)
	case FieldDeviceCategory:
		return deref(r.DeviceCategory)
	default:
		return ""
	}
}

// UpsertParams carries one upsert. A nil optional field keeps the stored
// value; a non-nil field overwrites it, including with "".
type UpsertParams struct {
	UID            string
	CASHash        string
	Hostname       *string
	IPAddress      *string
	DeviceCategory *string
}

// Filter maps queryable field names to exact values. All entries are ANDed.
// A nil or empty filter matches every active device.
type Filter map[string]string

// StatusOptions selects the optional lists included in a StatusReport.
type StatusOptions struct {
	IncludeOrphans      bool
	IncludeDeviceHashes bool
}

// StatusReport summarises the store and registry.
//
// Orphans and DeviceHashes are nil unless requested; when requested they are
// always present in the JSON form, even if empty.
type StatusReport struct {
	CAS          int      `json:"cas"`
	Devices      int      `json:"devices"`
	OrphansCount int      `json:"orphans_count"`
	Orphans      []string `json:"orphans,omitempty"`
	DeviceHashes []string `json:"device_hashes,omitempty"`
}

// MarshalJSON keeps requested but empty lists in the output.
func (s StatusReport) MarshalJSON() ([]byte, error) {
	out := struct {
		CAS          int       `json:"cas"`
		Devices      int       `json:"devices"`
		OrphansCount int       `json:"orphans_count"`
		Orphans      *[]string `json:"orphans,omitempty"`
		DeviceHashes *[]string `json:"device_hashes,omitempty"`
	}{
		CAS:          s.CAS,
		Devices:      s.Devices,
		OrphansCount: s.OrphansCount,
	}
	if s.Orphans != nil {
		out.Orphans = &s.Orphans
	}
	if s.DeviceHashes != nil {
		out.DeviceHashes = &s.DeviceHashes
	}
	return json.Marshal(out)
}

// Ptr returns a pointer to s, for filling optional UpsertParams fields.
func Ptr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
