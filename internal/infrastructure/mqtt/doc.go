// Package mqtt connects ndb to an MQTT broker.
//
// It is optional: nothing in the registry depends on it. When enabled in
// configuration, discover publishes a JSON event for every saved device
// and listen consumes device announcements.
//
// Topics live under a configurable prefix (default "ndb"):
//
//	ndb/devices/{uid}/discovered    DiscoveryEvent, QoS from config
//	ndb/announce/{name}             raw text, stored in the content store
//	ndb/clients/{client_id}/status  retained online/offline status, LWT
//
// Each connection uses the configured client ID plus a random suffix so that
// overlapping CLI invocations do not kick each other off the broker.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishDiscovered(mqtt.DiscoveryEvent{UID: uid, CASHash: hash, Source: "web_device_info"})
package mqtt
