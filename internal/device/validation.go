package device

import (
	"fmt"
	"strings"
)

// allowedFields is the query allow-list.
var allowedFields = map[string]struct{}{
	FieldUID:            {},
	FieldHostname:       {},
	FieldIPAddress:      {},
	FieldDeviceCategory: {},
}

// ValidateUpsert checks that an upsert names a device and a content hash.
// Attribute values are stored as given, whatever their length.
func ValidateUpsert(p UpsertParams) error {
	if err := ValidateUID(p.UID); err != nil {
		return err
	}
	if p.CASHash == "" {
		return fmt.Errorf("%w: cas hash is required", ErrInvalidDevice)
	}
	return nil
}

// ValidateUID checks that a UID is present.
func ValidateUID(uid string) error {
	if uid == "" {
		return fmt.Errorf("%w: uid is required", ErrInvalidDevice)
	}
	return nil
}

// ValidateFilter rejects any key outside the allow-list.
func ValidateFilter(f Filter) error {
	for k := range f {
		if _, ok := allowedFields[k]; !ok {
			return fmt.Errorf("%w: %q (allowed: %s)", ErrInvalidField, k, strings.Join(AllFields(), ", "))
		}
	}
	return nil
}
