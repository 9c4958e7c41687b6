package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultTokenURI = "https://oauth2.googleapis.com/token"
	untitled        = "(no title)"
	eventNote       = "Created by daylog"
)

var ErrNoPlanCalendar = errors.New("no plan calendar configured")

type Config struct {
	ClientID       string
	ClientSecret   string
	RefreshToken   string
	TokenURI       string
	CalendarIDs    []string // calendars read for free/busy
	PlanCalendarID string   // calendar receiving confirmed plans
	Location       *time.Location
	Timeout        time.Duration
	BaseURL        string // overridden in tests
}

// Client talks to Google Calendar with an OAuth refresh token.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.TokenURI == "" {
		cfg.TokenURI = defaultTokenURI
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// token returns a cached access token, exchanging the refresh token when it
// is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", c.cfg.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed (%d): %s", resp.StatusCode, string(body))
	}

	tok := gjson.GetBytes(body, "access_token").String()
	if tok == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	expiresIn := gjson.GetBytes(body, "expires_in").Int()
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	c.accessToken = tok
	c.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)
	return tok, nil
}

func (c *Client) request(ctx context.Context, method, path string, body any) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if msg := gjson.GetBytes(respBody, "error.message").String(); msg != "" {
			return nil, fmt.Errorf("calendar API error (%d): %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("calendar API error (%d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// ListDay returns the events of day across every read calendar, ordered by
// start time.
func (c *Client) ListDay(ctx context.Context, day time.Time) ([]Event, error) {
	start, end := dayBounds(day, c.cfg.Location)

	perCalendar := make([][]Event, len(c.cfg.CalendarIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range c.cfg.CalendarIDs {
		g.Go(func() error {
			events, err := c.listCalendar(gctx, id, start, end)
			if err != nil {
				return fmt.Errorf("list %s: %w", id, err)
			}
			perCalendar[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Event
	for _, events := range perCalendar {
		all = append(all, events...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Start.Before(all[j].Start) })
	return all, nil
}

func (c *Client) listCalendar(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]Event, error) {
	var events []Event
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("timeMin", timeMin.Format(time.RFC3339))
		q.Set("timeMax", timeMax.Format(time.RFC3339))
		q.Set("singleEvents", "true")
		q.Set("orderBy", "startTime")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		path := fmt.Sprintf("/calendars/%s/events?%s", url.PathEscape(calendarID), q.Encode())
		body, err := c.request(ctx, "GET", path, nil)
		if err != nil {
			return nil, err
		}

		gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
			if ev, ok := c.convertEvent(item, calendarID); ok {
				events = append(events, ev)
			}
			return true
		})

		pageToken = gjson.GetBytes(body, "nextPageToken").String()
		if pageToken == "" {
			return events, nil
		}
	}
}

// convertEvent decodes one API item. Items with a "date" start are all-day.
func (c *Client) convertEvent(item gjson.Result, calendarID string) (Event, bool) {
	if item.Get("status").String() == "cancelled" {
		return Event{}, false
	}
	ev := Event{
		Title:      item.Get("summary").String(),
		CalendarID: calendarID,
	}
	if ev.Title == "" {
		ev.Title = untitled
	}

	if d := item.Get("start.date"); d.Exists() {
		ev.AllDay = true
		start, err := time.ParseInLocation("2006-01-02", d.String(), c.cfg.Location)
		if err != nil {
			return Event{}, false
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if e, err := time.ParseInLocation("2006-01-02", item.Get("end.date").String(), c.cfg.Location); err == nil {
			ev.End = e
		}
		return ev, true
	}

	start, err := time.Parse(time.RFC3339, item.Get("start.dateTime").String())
	if err != nil {
		return Event{}, false
	}
	end, err := time.Parse(time.RFC3339, item.Get("end.dateTime").String())
	if err != nil {
		return Event{}, false
	}
	ev.Start = start.In(c.cfg.Location)
	ev.End = end.In(c.cfg.Location)
	return ev, true
}

// CreateEvent inserts a timed event on the plan calendar and returns its id.
func (c *Client) CreateEvent(ctx context.Context, title string, start, end time.Time) (string, error) {
	calendarID := c.cfg.PlanCalendarID
	if calendarID == "" && len(c.cfg.CalendarIDs) > 0 {
		calendarID = c.cfg.CalendarIDs[0]
	}
	if calendarID == "" {
		return "", ErrNoPlanCalendar
	}

	zone := c.cfg.Location.String()
	body := map[string]any{
		"summary":     title,
		"description": eventNote,
		"start": map[string]string{
			"dateTime": start.In(c.cfg.Location).Format(time.RFC3339),
			"timeZone": zone,
		},
		"end": map[string]string{
			"dateTime": end.In(c.cfg.Location).Format(time.RFC3339),
			"timeZone": zone,
		},
	}

	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(calendarID))
	resp, err := c.request(ctx, "POST", path, body)
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	return gjson.GetBytes(resp, "id").String(), nil
}
