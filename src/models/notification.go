package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Notification is one entry of the admin notification feed
type Notification struct {
	ID        string           `json:"_id"`
	Type      NotificationType `json:"type"`
	Target    string           `json:"target,omitempty"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// UnmarshalJSON accepts both "_id" and "id", as a string or a number.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	var raw struct {
		plain
		RawID    json.RawMessage `json:"_id"`
		RawAltID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Notification(raw.plain)

	idField := raw.RawID
	if len(idField) == 0 {
		idField = raw.RawAltID
	}
	id, err := decodeID(idField)
	if err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	n.ID = id
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", err
	}
	if i, err := num.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return num.String(), nil
}

// Icon returns the glyph shown next to a notification of this type
func (t NotificationType) Icon() string {
	switch t {
	case NotificationTypeOrder:
		return "🛍️"
	case NotificationTypePayment:
		return "💰"
	default:
		return "📢"
	}
}

// NotificationView is a cached notification as the console presents it
type NotificationView struct {
	Notification
	Icon string `json:"icon"`
}

// UnmarshalJSON keeps the icon, which the embedded decoder would otherwise drop
func (v *NotificationView) UnmarshalJSON(data []byte) error {
	if err := v.Notification.UnmarshalJSON(data); err != nil {
		return err
	}
	var extra struct {
		Icon string `json:"icon"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	v.Icon = extra.Icon
	return nil
}

// NotificationFeed is a point-in-time copy of the local notification cache
type NotificationFeed struct {
	Notifications []NotificationView `json:"notifications"`
	UnreadCount   int                `json:"unread_count"`
	AlertsEnabled bool               `json:"alerts_enabled"`
	LastSyncedAt  *time.Time         `json:"last_synced_at,omitempty"`
}
