package domain

import "time"

// Automation actions. The scheduler only ever flips the "on" status field.
const (
	ActionOn  = "on"
	ActionOff = "off"
)

// Automation is a daily schedule that switches a device on or off at a
// fixed wall-clock time. ScheduleTime is "HH:MM" in the server's local
// time zone.
type Automation struct {
	ID           string
	DeviceID     string
	UserID       string
	Name         string
	ScheduleTime string
	Action       string
	Enabled      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
