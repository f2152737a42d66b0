package caldav

import "time"

// Calendar is a remote calendar collection.
type Calendar struct {
	ID          string // Calendar path/URL
	DisplayName string
	URL         string
}

// Event is a single dose event to publish.
type Event struct {
	UID         string // Unique ID in CalDAV; PUT with the same UID replaces
	Summary     string
	Description string
	StartTime   time.Time
	EndTime     time.Time
}
