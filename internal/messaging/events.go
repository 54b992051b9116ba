package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// HeaderEventType names the event carried by a message.
const HeaderEventType = "event-type"

// EventAssetCheckChanged is published after a device's asset check is stored.
const EventAssetCheckChanged = "asset_check.changed"

// Event sources.
const (
	SourceScan  = "scan"
	SourceClear = "clear"
)

// AssetCheckChanged describes one confirmed audit flag change.
type AssetCheckChanged struct {
	DeviceID     int64     `json:"device_id"`
	SerialNumber string    `json:"serial_number"`
	Warehouse    string    `json:"warehouse,omitempty"`
	AssetCheck   string    `json:"asset_check"`
	UpdatedBy    string    `json:"updated_by"`
	UpdatedAt    time.Time `json:"updated_at"`
	Source       string    `json:"source"`
}

// Message encodes the event keyed by device id so changes to one device stay
// ordered within a partition.
func (e AssetCheckChanged) Message() (Message, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("encode asset check event: %w", err)
	}
	return Message{
		Key:     []byte(strconv.FormatInt(e.DeviceID, 10)),
		Value:   raw,
		Headers: map[string]string{HeaderEventType: EventAssetCheckChanged},
	}, nil
}

// DecodeAssetCheckChanged reads an event produced by AssetCheckChanged.Message.
func DecodeAssetCheckChanged(msg Message) (AssetCheckChanged, error) {
	if t, ok := msg.Headers[HeaderEventType]; ok && t != EventAssetCheckChanged {
		return AssetCheckChanged{}, fmt.Errorf("unexpected event type %q", t)
	}
	var e AssetCheckChanged
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		return AssetCheckChanged{}, fmt.Errorf("decode asset check event: %w", err)
	}
	if e.DeviceID == 0 {
		return AssetCheckChanged{}, fmt.Errorf("asset check event without device id")
	}
	return e, nil
}

// PublishAssetChecks publishes events in one batch.
func PublishAssetChecks(ctx context.Context, c Client, events ...AssetCheckChanged) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]Message, 0, len(events))
	for _, e := range events {
		m, err := e.Message()
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	return c.Publish(ctx, msgs...)
}
