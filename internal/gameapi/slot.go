package gameapi

import (
	"fmt"
	"time"
)

// SlotFor returns the 30-minute UTC price slot label ("HH:00" or "HH:30")
// that the given instant falls in. Upstream keys its price table by these
// labels and rotates rows exactly at the boundaries.
func SlotFor(t time.Time) string {
	t = t.UTC()
	half := 0
	if t.Minute() >= 30 {
		half = 30
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), half)
}

// CurrentSlot returns the slot label for the current instant.
func CurrentSlot() string {
	return SlotFor(time.Now())
}
