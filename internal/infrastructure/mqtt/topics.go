package mqtt

import "strings"

// Topics builds ndb topic names under a configurable prefix.
//
// Layout:
//
//	{prefix}/devices/{uid}/discovered   discovery events (published by ndb)
//	{prefix}/announce/{name}            device announcements (consumed by listen)
//	{prefix}/clients/{client_id}/status online/offline status with LWT
type Topics struct {
	Prefix string
}

// NewTopics returns a builder for the given prefix. Surrounding slashes are
// trimmed; an empty prefix falls back to "ndb".
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

const defaultTopicPrefix = "ndb"

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return defaultTopicPrefix
	}
	return t.Prefix
}

// DeviceDiscovered returns the event topic for a saved discovery.
func (t Topics) DeviceDiscovered(uid string) string {
	return t.prefix() + "/devices/" + uid + "/discovered"
}

// AllDiscovered matches every discovery event.
func (t Topics) AllDiscovered() string {
	return t.prefix() + "/devices/+/discovered"
}

// Announce returns the announcement topic for a single publisher.
func (t Topics) Announce(name string) string {
	return t.prefix() + "/announce/" + name
}

// AllAnnounce matches every announcement.
func (t Topics) AllAnnounce() string {
	return t.prefix() + "/announce/#"
}

// ClientStatus returns the retained status topic for a client connection.
func (t Topics) ClientStatus(clientID string) string {
	return t.prefix() + "/clients/" + clientID + "/status"
}

// UIDFromDiscovered extracts the uid from a discovery event topic.
func (t Topics) UIDFromDiscovered(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.prefix()+"/devices/")
	if !ok {
		return "", false
	}
	uid, ok := strings.CutSuffix(rest, "/discovered")
	if !ok || uid == "" || strings.Contains(uid, "/") {
		return "", false
	}
	return uid, true
}
