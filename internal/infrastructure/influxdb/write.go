package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDiscovery is the measurement written for every saved discovery.
const MeasurementDiscovery = "device_discovery"

// DiscoveryPoint builds the point recorded when a device is discovered.
// Empty category or source tags are omitted.
func DiscoveryPoint(uid, category, source string, ts time.Time) *write.Point {
	tags := map[string]string{"uid": uid}
	if category != "" {
		tags["category"] = category
	}
	if source != "" {
		tags["source"] = source
	}

	return write.NewPoint(
		MeasurementDiscovery,
		tags,
		map[string]interface{}{"seen": int64(1)},
		ts,
	)
}

// WriteDiscovery queues a discovery point stamped with the current time.
func (c *Client) WriteDiscovery(uid, category, source string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(DiscoveryPoint(uid, category, source, time.Now()))
}
