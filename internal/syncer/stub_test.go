package syncer_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/syncer"
)

// stubCalendar is an in-memory calendar counting the writes it receives.
type stubCalendar struct {
	mu      sync.Mutex
	events  []*internal.Event
	listErr error
	// failOn makes writes of events with that subject fail.
	failOn   map[string]error
	onCreate func(e *internal.Event)

	creates int
	updates int
	nextID  int
}

func (c *stubCalendar) ListCalendars(context.Context) ([]*internal.CalendarInfo, error) {
	return []*internal.CalendarInfo{{ID: "cal", Name: "Calendar", IsDefault: true}}, nil
}

func (c *stubCalendar) ListEvents(_ context.Context, calendarID string, _ internal.Window) ([]*internal.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listErr != nil {
		return nil, c.listErr
	}
	res := make([]*internal.Event, len(c.events))
	for i, e := range c.events {
		cp := *e
		res[i] = &cp
	}
	return res, nil
}

func (c *stubCalendar) CreateEvent(_ context.Context, calendarID string, e *internal.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.creates++
	if err := c.failOn[e.Subject]; err != nil {
		return "", &internal.WriteError{Op: "create event", CalendarID: calendarID, Err: err}
	}
	c.nextID++
	cp := *e
	cp.ID = fmt.Sprintf("t-%d", c.nextID)
	cp.CalendarID = calendarID
	c.events = append(c.events, &cp)
	if c.onCreate != nil {
		c.onCreate(&cp)
	}
	return cp.ID, nil
}

func (c *stubCalendar) UpdateEvent(_ context.Context, calendarID, eventID string, e *internal.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updates++
	if err := c.failOn[e.Subject]; err != nil {
		return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: err}
	}
	for i, t := range c.events {
		if t.ID == eventID {
			cp := *e
			cp.ID = eventID
			cp.CalendarID = calendarID
			c.events[i] = &cp
			return nil
		}
	}
	return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: fmt.Errorf("not found")}
}

func (c *stubCalendar) writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates + c.updates
}

type memStorage struct {
	mappings map[string]map[syncer.Key]string
	err      error
}

func newMemStorage() *memStorage {
	return &memStorage{mappings: make(map[string]map[syncer.Key]string)}
}

func (s *memStorage) Mappings(_ context.Context, calendarID string) (map[syncer.Key]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.mappings[calendarID], nil
}

func (s *memStorage) SaveMapping(_ context.Context, calendarID string, key syncer.Key, targetID string) error {
	if s.err != nil {
		return s.err
	}
	if s.mappings[calendarID] == nil {
		s.mappings[calendarID] = make(map[syncer.Key]string)
	}
	s.mappings[calendarID][key] = targetID
	return nil
}
