package model

import (
	"errors"
	"fmt"
)

var (
	ErrNoSeatsAvailable = errors.New("no seats available")
	ErrSeatOverflow     = errors.New("seats available would exceed max attendees")
)

// BookedSeats is maxAttendees minus seatsAvailable. It is never stored.
func (c Conference) BookedSeats() int {
	return c.MaxAttendees - c.SeatsAvailable
}

// IsFull reports whether every seat is booked.
func (c Conference) IsFull() bool {
	return c.SeatsAvailable <= 0
}

// BookSeats takes n seats out of the available inventory.
func (c *Conference) BookSeats(n int) error {
	if n <= 0 {
		return fmt.Errorf("cannot book %d seats", n)
	}
	if c.SeatsAvailable < n {
		return fmt.Errorf("%w: %d left, %d requested", ErrNoSeatsAvailable, c.SeatsAvailable, n)
	}
	c.SeatsAvailable -= n
	return nil
}

// GiveBackSeats returns n seats to the inventory. Returning more seats than
// are booked means the inventory was already inconsistent.
func (c *Conference) GiveBackSeats(n int) error {
	if n <= 0 {
		return fmt.Errorf("cannot give back %d seats", n)
	}
	if c.SeatsAvailable+n > c.MaxAttendees {
		return fmt.Errorf("%w: %d available, %d returned, max %d", ErrSeatOverflow, c.SeatsAvailable, n, c.MaxAttendees)
	}
	c.SeatsAvailable += n
	return nil
}
