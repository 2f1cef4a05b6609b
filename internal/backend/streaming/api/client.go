package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pageLimit = 50

// Artist is a credited artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Album is the album a track appears on.
type Album struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track is a track object.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	DurationMS int64    `json:"duration_ms"`
	Album      Album    `json:"album"`
	Artists    []Artist `json:"artists"`
}

// AudioFeatures holds the analysis of a track. Key is a pitch class, -1 when
// unknown; Mode is 1 for major and 0 for minor.
type AudioFeatures struct {
	ID    string  `json:"id"`
	Tempo float64 `json:"tempo"`
	Key   int     `json:"key"`
	Mode  int     `json:"mode"`
}

// Playlist is a playlist object.
type Playlist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SnapshotID string `json:"snapshot_id"`
}

// User is a user profile.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type playlistItem struct {
	Track *Track `json:"track"`
}

type page[T any] struct {
	Items []T    `json:"items"`
	Total int    `json:"total"`
	Next  string `json:"next"`
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.StatusCode == http.StatusNotFound
}

// Client provides access to the streaming web API.
type Client struct {
	token      string
	baseURL    string
	market     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient creates an API client. market may be empty.
func NewClient(token, baseURL, market string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("streaming access token required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("streaming base url required")
	}
	client := &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		market:     strings.TrimSpace(market),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Track fetches one track.
func (c *Client) Track(ctx context.Context, id string) (*Track, error) {
	var payload Track
	if err := c.get(ctx, "/tracks/"+url.PathEscape(id), c.marketParams(), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// AudioFeatures fetches the analysis of one track.
func (c *Client) AudioFeatures(ctx context.Context, id string) (*AudioFeatures, error) {
	var payload AudioFeatures
	if err := c.get(ctx, "/audio-features/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Playlist fetches the playlist's metadata without its items.
func (c *Client) Playlist(ctx context.Context, id string) (*Playlist, error) {
	params := url.Values{}
	params.Set("fields", "id,name,snapshot_id")
	var payload Playlist
	if err := c.get(ctx, "/playlists/"+url.PathEscape(id), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// PlaylistTracks returns every track of the playlist, in order. Local or
// unavailable items without an id are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, id string) ([]Track, error) {
	var tracks []Track
	for offset := 0; ; offset += pageLimit {
		params := c.marketParams()
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(pageLimit))
		var payload page[playlistItem]
		if err := c.get(ctx, "/playlists/"+url.PathEscape(id)+"/tracks", params, &payload); err != nil {
			return nil, err
		}
		for _, item := range payload.Items {
			if item.Track != nil && item.Track.ID != "" {
				tracks = append(tracks, *item.Track)
			}
		}
		if payload.Next == "" || len(payload.Items) == 0 {
			return tracks, nil
		}
	}
}

// AddTracks appends tracks to a playlist and returns the new snapshot id.
func (c *Client) AddTracks(ctx context.Context, playlistID string, trackIDs []string) (string, error) {
	var snapshot string
	for start := 0; start < len(trackIDs); start += 100 {
		end := min(start+100, len(trackIDs))
		uris := make([]string, 0, end-start)
		for _, id := range trackIDs[start:end] {
			uris = append(uris, "spotify:track:"+id)
		}
		var payload struct {
			SnapshotID string `json:"snapshot_id"`
		}
		body := map[string]any{"uris": uris}
		if err := c.do(ctx, http.MethodPost, "/playlists/"+url.PathEscape(playlistID)+"/tracks", nil, body, &payload); err != nil {
			return "", err
		}
		snapshot = payload.SnapshotID
	}
	return snapshot, nil
}

// Unfollow removes the playlist from the current user's library.
func (c *Client) Unfollow(ctx context.Context, playlistID string) error {
	return c.do(ctx, http.MethodDelete, "/playlists/"+url.PathEscape(playlistID)+"/followers", nil, nil, nil)
}

// User fetches a user profile.
func (c *Client) User(ctx context.Context, id string) (*User, error) {
	var payload User
	if err := c.get(ctx, "/users/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// UserPlaylists returns every public playlist of a user.
func (c *Client) UserPlaylists(ctx context.Context, id string) ([]Playlist, error) {
	var out []Playlist
	for offset := 0; ; offset += pageLimit {
		params := url.Values{}
		params.Set("offset", strconv.Itoa(offset))
		params.Set("limit", strconv.Itoa(pageLimit))
		var payload page[Playlist]
		if err := c.get(ctx, "/users/"+url.PathEscape(id)+"/playlists", params, &payload); err != nil {
			return nil, err
		}
		out = append(out, payload.Items...)
		if payload.Next == "" || len(payload.Items) == 0 {
			return out, nil
		}
	}
}

func (c *Client) marketParams() url.Values {
	params := url.Values{}
	if c.market != "" {
		params.Set("market", c.market)
	}
	return params
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dst any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, dst)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, dst any) error {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse streaming url: %w", err)
	}
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Endpoint:   method + " " + path,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body),
		}
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts the message of an API error body.
func errorMessage(body io.Reader) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(data))
}
