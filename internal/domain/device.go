package domain

import "time"

// Device categories recognized by the fulfillment layer. Devices report
// one of these in their Type field; anything else falls back to the
// outlet defaults during SYNC.
const (
	CategoryOutlet     = "Smart Outlet"
	CategorySwitch     = "Smart Switch"
	CategorySensor     = "Smart Sensor"
	CategoryPlugBridge = "Smart Plug Bridge"
	CategoryValve      = "Smart Valve"
)

// DeviceStatus is the free-form state map persisted as JSONB. The "on"
// key is the canonical power field mutated by automations.
type DeviceStatus map[string]any

// Device is a smart device owned by a user.
type Device struct {
	ID          string
	DeviceID    string
	UserID      string
	Name        string
	Type        string
	Location    string
	Status      DeviceStatus
	Traits      []string
	LastUpdated time.Time
	CreatedAt   time.Time
}

// On reports the power state, defaulting to false when unset.
func (s DeviceStatus) On() bool {
	v, ok := s["on"].(bool)
	return ok && v
}

// Clone returns a shallow copy so command handlers can merge new fields
// without mutating the loaded record.
func (s DeviceStatus) Clone() DeviceStatus {
	next := make(DeviceStatus, len(s)+1)
	for k, v := range s {
		next[k] = v
	}
	return next
}
