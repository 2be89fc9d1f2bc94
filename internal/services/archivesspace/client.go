package archivesspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotFound reports that no archival object carries the requested ref id.
var ErrNotFound = errors.New("archival object not found")

// Record holds the descriptive metadata the pipeline pulls per bag.
type Record struct {
	Title string
	Date  string
}

// Lookup is the behaviour the prepare stage requires.
type Lookup interface {
	FindByRefID(ctx context.Context, refID string) (*Record, error)
}

// Config holds connection parameters for an ArchivesSpace backend.
type Config struct {
	BaseURL        string
	Username       string
	Password       string
	Repository     int
	TimeoutSeconds int
}

// Client talks to the ArchivesSpace staff API. Sessions are obtained lazily
// and re-established once when the server reports an expired token.
type Client struct {
	baseURL    string
	username   string
	password   string
	repository int
	httpClient *http.Client

	mu      sync.Mutex
	session string
}

// New constructs an ArchivesSpace client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("archivesspace base url required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("archivesspace credentials required")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    base,
		username:   cfg.Username,
		password:   cfg.Password,
		repository: cfg.Repository,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// FindByRefID resolves a component ref id to its archival object and returns
// the object's title and first date expression.
func (c *Client) FindByRefID(ctx context.Context, refID string) (*Record, error) {
	refID = strings.TrimSpace(refID)
	if refID == "" {
		return nil, errors.New("ref id required")
	}

	findPath := fmt.Sprintf("/repositories/%d/find_by_id/archival_objects?ref_id[]=%s",
		c.repository, url.QueryEscape(refID))

	var found struct {
		ArchivalObjects []struct {
			Ref string `json:"ref"`
		} `json:"archival_objects"`
	}
	if err := c.get(ctx, findPath, &found); err != nil {
		return nil, fmt.Errorf("find archival object %s: %w", refID, err)
	}
	if len(found.ArchivalObjects) == 0 {
		return nil, fmt.Errorf("ref id %s: %w", refID, ErrNotFound)
	}

	var object struct {
		Title string `json:"title"`
		Dates []struct {
			Expression string `json:"expression"`
			Begin      string `json:"begin"`
			End        string `json:"end"`
		} `json:"dates"`
	}
	if err := c.get(ctx, found.ArchivalObjects[0].Ref, &object); err != nil {
		return nil, fmt.Errorf("fetch archival object %s: %w", refID, err)
	}

	record := &Record{Title: strings.TrimSpace(object.Title)}
	if len(object.Dates) > 0 {
		record.Date = dateLabel(object.Dates[0].Expression, object.Dates[0].Begin, object.Dates[0].End)
	}
	return record, nil
}

func dateLabel(expression, begin, end string) string {
	if expression != "" {
		return expression
	}
	if begin == "" {
		return ""
	}
	if end == "" || end == begin {
		return begin
	}
	return begin + "-" + end
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	session, err := c.currentSession(ctx)
	if err != nil {
		return err
	}

	status, err := c.doGet(ctx, path, session, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized || status == http.StatusPreconditionFailed {
		// Session expired; log in again and retry once.
		if session, err = c.login(ctx); err != nil {
			return err
		}
		if status, err = c.doGet(ctx, path, session, out); err != nil {
			return err
		}
	}
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	if status != http.StatusOK {
		return fmt.Errorf("archivesspace returned status %d for %s", status, path)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path, session string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-ArchivesSpace-Session", session)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) currentSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != "" {
		return session, nil
	}
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) (string, error) {
	loginURL := fmt.Sprintf("%s/users/%s/login", c.baseURL, url.PathEscape(c.username))
	form := url.Values{"password": {c.password}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("archivesspace login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("archivesspace login failed with status %d", resp.StatusCode)
	}

	var body struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if body.Session == "" {
		return "", errors.New("archivesspace login returned no session token")
	}

	c.mu.Lock()
	c.session = body.Session
	c.mu.Unlock()
	return body.Session, nil
}
