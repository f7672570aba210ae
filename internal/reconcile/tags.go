package reconcile

import (
	"strings"

	"github.com/nerrad567/ndb/internal/device"
)

// TagPrefix marks content entries that encode a device snapshot.
const TagPrefix = "sys="

// Tag keys, in the order they are consulted.
var (
	uidKeys      = []string{"id", "uid", "sys"}
	hostnameKeys = []string{"hostname", "sys"}
	ipKeys       = []string{"ip", "ip_address"}
	categoryKeys = []string{"category", "device_category"}
)

// IsTagLine reports whether content is eligible for reconciliation.
func IsTagLine(content string) bool {
	return strings.HasPrefix(content, TagPrefix)
}

// ParseTagLine parses the first line of content into key/value pairs.
// Tokens without '=' are skipped and a repeated key keeps its last value.
func ParseTagLine(content string) map[string]string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSuffix(line, "\r")

	tags := make(map[string]string)
	for _, tok := range strings.Fields(line) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		tags[key] = value
	}
	return tags
}

// Params resolves parsed tags into upsert parameters for hash. ok is false
// when no UID can be resolved. Empty values count as absent.
func Params(tags map[string]string, hash string) (p device.UpsertParams, ok bool) {
	uid := first(tags, uidKeys)
	if uid == nil {
		return device.UpsertParams{}, false
	}
	return device.UpsertParams{
		UID:            *uid,
		CASHash:        hash,
		Hostname:       first(tags, hostnameKeys),
		IPAddress:      first(tags, ipKeys),
		DeviceCategory: first(tags, categoryKeys),
	}, true
}

func first(tags map[string]string, keys []string) *string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return &v
		}
	}
	return nil
}
