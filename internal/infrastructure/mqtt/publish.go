package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// maxPayloadSize caps outgoing messages at 1MB, the usual broker limit.
const maxPayloadSize = 1 << 20

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "ndb/devices/cp-001/discovered")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// QoS Levels:
//   - 0: At most once (fire and forget)
//   - 1: At least once (guaranteed delivery, may duplicate)
//   - 2: Exactly once (guaranteed, no duplicates, higher overhead)
//
// Retained Messages:
//   - Used for client status topics, so late subscribers see who is online
//   - Not used for discovery events
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
//
// Example:
//
//	topic := client.Topics().Announce("bench")
//	err := client.Publish(topic, []byte("sys=feather-a id=cp-001"), 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// DiscoveryEvent is the JSON body published after a discovery is saved.
type DiscoveryEvent struct {
	UID       string    `json:"uid"`
	CASHash   string    `json:"cas_hash"`
	Hostname  string    `json:"hostname,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Category  string    `json:"device_category,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// EncodeDiscoveryEvent renders ev as JSON, filling Timestamp when unset.
func EncodeDiscoveryEvent(ev DiscoveryEvent) ([]byte, error) {
	if ev.UID == "" {
		return nil, fmt.Errorf("%w: discovery event without uid", ErrInvalidEvent)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return json.Marshal(ev)
}

// PublishDiscovered publishes a discovery event for a saved device.
//
// The event goes to {prefix}/devices/{uid}/discovered with the configured
// QoS and is not retained.
//
// Parameters:
//   - ev: The saved device; UID is required, Timestamp defaults to now
//
// Returns:
//   - error: ErrInvalidEvent without a UID, otherwise any Publish error
func (c *Client) PublishDiscovered(ev DiscoveryEvent) error {
	payload, err := EncodeDiscoveryEvent(ev)
	if err != nil {
		return err
	}
	return c.Publish(c.topics.DeviceDiscovered(ev.UID), payload, byte(c.cfg.QoS), false)
}
