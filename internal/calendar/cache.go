package calendar

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached wraps a Provider and keeps each day's event list for a short TTL.
// The summary is requested by the morning flow, /summary and the chat tool
// within minutes of each other; creating an event drops the cached day.
type Cached struct {
	next  Provider
	loc   *time.Location
	cache *expirable.LRU[string, []Event]
}

func NewCached(next Provider, loc *time.Location, ttl time.Duration) *Cached {
	if loc == nil {
		loc = time.Local
	}
	return &Cached{
		next:  next,
		loc:   loc,
		cache: expirable.NewLRU[string, []Event](16, nil, ttl),
	}
}

func (c *Cached) key(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

func (c *Cached) ListDay(ctx context.Context, day time.Time) ([]Event, error) {
	k := c.key(day)
	if events, ok := c.cache.Get(k); ok {
		return events, nil
	}
	events, err := c.next.ListDay(ctx, day)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, events)
	return events, nil
}

func (c *Cached) CreateEvent(ctx context.Context, title string, start, end time.Time) (string, error) {
	id, err := c.next.CreateEvent(ctx, title, start, end)
	if err != nil {
		return "", err
	}
	c.cache.Remove(c.key(start))
	return id, nil
}
