package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const clientAPIPrefix = "/_matrix/client/v3"

// Client is a minimal Matrix client-server API client bound to one access token
type Client struct {
	homeserver  *url.URL
	accessToken string
	http        *http.Client
}

// ClientConfig configures a Client
type ClientConfig struct {
	HomeserverURL string
	AccessToken   string
	HTTPClient    *http.Client
}

// NewClient creates a new client
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, ErrMissingHomeserver
	}
	u, err := url.Parse(strings.TrimRight(config.HomeserverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid homeserver url: %w", err)
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Client{
		homeserver:  u,
		accessToken: config.AccessToken,
		http:        config.HTTPClient,
	}, nil
}

// SyncRequest holds the query parameters of /sync
type SyncRequest struct {
	Since       string
	Filter      string
	Timeout     time.Duration
	FullState   bool
	SetPresence string
}

// SyncResponse is the subset of a /sync response launchgate needs
type SyncResponse struct {
	NextBatch    string
	JoinedRooms  int
	InvitedRooms int
}

// Sync performs one /sync request
func (c *Client) Sync(ctx context.Context, req SyncRequest) (SyncResponse, error) {
	q := url.Values{}
	if req.Since != "" {
		q.Set("since", req.Since)
	}
	if req.Filter != "" {
		q.Set("filter", req.Filter)
	}
	if req.FullState {
		q.Set("full_state", "true")
	}
	if req.SetPresence != "" {
		q.Set("set_presence", req.SetPresence)
	}
	q.Set("timeout", strconv.FormatInt(req.Timeout.Milliseconds(), 10))

	body, err := c.do(ctx, http.MethodGet, "/sync", q, nil)
	if err != nil {
		return SyncResponse{}, err
	}

	parsed := gjson.ParseBytes(body)
	next := parsed.Get("next_batch")
	if !next.Exists() || next.String() == "" {
		return SyncResponse{}, ErrMissingNextBatch
	}

	return SyncResponse{
		NextBatch:    next.String(),
		JoinedRooms:  len(parsed.Get("rooms.join").Map()),
		InvitedRooms: len(parsed.Get("rooms.invite").Map()),
	}, nil
}

// PusherData is the data object of an http pusher
type PusherData struct {
	URL    string `json:"url,omitempty"`
	Format string `json:"format,omitempty"`
}

// Pusher describes a pusher registration
type Pusher struct {
	PushKey           string     `json:"pushkey"`
	Kind              string     `json:"kind"`
	AppID             string     `json:"app_id"`
	AppDisplayName    string     `json:"app_display_name"`
	DeviceDisplayName string     `json:"device_display_name"`
	ProfileTag        string     `json:"profile_tag,omitempty"`
	Lang              string     `json:"lang"`
	Data              PusherData `json:"data"`
	Append            bool       `json:"append"`
}

// SetPusher creates or updates a pusher for the current user
func (c *Client) SetPusher(ctx context.Context, p Pusher) error {
	if p.Kind == "" {
		p.Kind = "http"
	}
	_, err := c.do(ctx, http.MethodPost, "/pushers/set", nil, p)
	return err
}

// Logout invalidates the access token on the homeserver
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, struct{}{})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	u := *c.homeserver
	u.Path = c.homeserver.Path + clientAPIPrefix + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		merr := &Error{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, merr)
		return nil, merr
	}

	return data, nil
}
