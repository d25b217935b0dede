// Package schedule holds the device's cached copy of the medication schedule.
// The backend groups doses into three categories. Each category is replaced
// wholesale after a successful fetch and persisted straight away, so a freshly
// booted device can alert from the last known schedule while offline.
package schedule

import (
	"log"
	"unicode/utf8"
)

// Category identifies one of the backend's dose lists.
type Category string

const (
	Taken    Category = "taken"
	Upcoming Category = "upcoming"
	Missed   Category = "missed"
)

// Categories lists every category in fetch order after Upcoming.
var Categories = []Category{Upcoming, Taken, Missed}

// Field limits, in bytes, carried over from the device's fixed record layout.
const (
	MaxRecords   = 10
	MaxName      = 47
	MaxDose      = 31
	MaxTime      = 7
	MaxStatus    = 15
	MaxDoseID    = 39
	MaxUpdatedAt = 15
	MinSlot      = 1
	MaxSlot      = 5
)

// Valid reports whether c names a known category.
func (c Category) Valid() bool {
	switch c {
	case Taken, Upcoming, Missed:
		return true
	}
	return false
}

// Title is the heading shown above the category's list.
func (c Category) Title() string {
	switch c {
	case Taken:
		return "TAKEN"
	case Upcoming:
		return "UPCOMING"
	case Missed:
		return "MISSED"
	}
	return string(c)
}

// Path is the backend resource for the category.
func (c Category) Path() string {
	return "/hardware/" + string(c)
}

// StoreKey is the persistence key for the category.
func (c Category) StoreKey() string {
	return "med_" + string(c)
}

// DoseRecord is one scheduled or administered dose.
type DoseRecord struct {
	Name          string `json:"name"`
	Dose          string `json:"dose"`
	ScheduledTime string `json:"time"`
	Status        string `json:"status"`
	DoseID        string `json:"dose_id"` // empty = cannot be reported
	Slot          int    `json:"slot"`
}

// NewDoseRecord builds a record, silently truncating long fields and clamping
// the slot into the carousel's range.
func NewDoseRecord(name, dose, scheduledTime, status, doseID string, slot int) DoseRecord {
	if slot < MinSlot || slot > MaxSlot {
		clamped := clampSlot(slot)
		log.Printf("schedule: %q has slot %d out of range; using %d", name, slot, clamped)
		slot = clamped
	}
	return DoseRecord{
		Name:          Truncate(name, MaxName),
		Dose:          Truncate(dose, MaxDose),
		ScheduledTime: Truncate(scheduledTime, MaxTime),
		Status:        Truncate(status, MaxStatus),
		DoseID:        Truncate(doseID, MaxDoseID),
		Slot:          slot,
	}
}

// Reportable reports whether the backend can be told about this dose.
func (r DoseRecord) Reportable() bool {
	return r.DoseID != ""
}

// CategoryCache is the cached contents of one category.
type CategoryCache struct {
	Records   []DoseRecord `json:"records"`
	UpdatedAt string       `json:"updated_at"`
	Valid     bool         `json:"-"`
}

func (c CategoryCache) clone() CategoryCache {
	out := c
	if c.Records != nil {
		out.Records = append([]DoseRecord(nil), c.Records...)
	}
	return out
}

func clampSlot(slot int) int {
	if slot < MinSlot {
		return MinSlot
	}
	if slot > MaxSlot {
		return MaxSlot
	}
	return slot
}

// Truncate shortens s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
