package foxbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clbanning/mxj/v2"
)

const (
	// DefaultURL is the default URL endpoint for a foxbox.
	DefaultURL = "http://localhost:3000/"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second
)

// Client represents a foxbox client connection.
type Client struct {
	rawurl string
	token  string
	cl     *http.Client

	sync.Mutex
}

// NewClient creates a new foxbox client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		cl: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	if c.rawurl == "" {
		WithURL(DefaultURL)(c)
	}
	return c
}

// URL returns the base URL of the box.
func (c *Client) URL() string {
	return c.rawurl
}

// Token returns the session token in use.
func (c *Client) Token() string {
	c.Lock()
	defer c.Unlock()
	return c.token
}

// SetToken sets the session token used to authorize requests.
func (c *Client) SetToken(token string) {
	c.Lock()
	defer c.Unlock()
	c.token = token
}

// doReq sends a request to the box with the provided method and path,
// returning the response status, content type, and body. If v is non-nil it
// is sent as the JSON encoded request body. Requests are strictly
// sequential.
func (c *Client) doReq(ctx context.Context, method, path string, v interface{}) (int, string, []byte, error) {
	c.Lock()
	defer c.Unlock()
	// build request body
	var body io.Reader
	if v != nil {
		buf, err := json.Marshal(v)
		if err != nil {
			return 0, "", nil, err
		}
		body = bytes.NewReader(buf)
	}
	// build http request
	req, err := http.NewRequestWithContext(ctx, method, c.rawurl+path, body)
	if err != nil {
		return 0, "", nil, err
	}
	if v != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	// do request
	res, err := c.cl.Do(req)
	if err != nil {
		return 0, "", nil, fmt.Errorf("unable to connect to server at %s: %w", c.rawurl, err)
	}
	defer res.Body.Close()
	// read body
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, "", nil, err
	}
	return res.StatusCode, res.Header.Get("Content-Type"), buf, nil
}

// doList sends a request to the box, decoding the JSON array response.
func (c *Client) doList(ctx context.Context, method, path string, v interface{}) ([]map[string]interface{}, error) {
	status, _, buf, err := c.doReq(ctx, method, path, v)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w (status %d)", ErrTokenRejected, status)
	}
	var l []map[string]interface{}
	if err := json.Unmarshal(buf, &l); err != nil {
		return nil, ErrInvalidResponse
	}
	return l, nil
}

// Login authenticates against the box with HTTP basic credentials,
// returning a fresh session token. The token is not retained on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	c.Lock()
	defer c.Unlock()
	// build http request
	req, err := http.NewRequestWithContext(ctx, "POST", c.rawurl+"users/login", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(username, password)
	// do request
	res, err := c.cl.Do(req)
	if err != nil {
		return "", fmt.Errorf("unable to connect to server at %s: %w", c.rawurl, err)
	}
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	// a session is created, anything else is a rejection
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w (status %d)", ErrAuthRejected, res.StatusCode)
	}
	m, err := mxj.NewMapJson(buf)
	if err != nil {
		return "", ErrInvalidResponse
	}
	token, err := m.ValueForPathString("session_token")
	if err != nil || token == "" {
		return "", ErrInvalidResponse
	}
	return token, nil
}

// Services retrieves the services known to the box, in server order. A
// status other than 200 reports the session token as rejected.
func (c *Client) Services(ctx context.Context) ([]Service, error) {
	l, err := c.doList(ctx, "GET", "api/v1/services", nil)
	if err != nil {
		return nil, err
	}
	services := make([]Service, len(l))
	for i, m := range l {
		services[i] = Service(m)
	}
	return services, nil
}

// Channels retrieves the channels known to the box, in server order.
func (c *Client) Channels(ctx context.Context) ([]Channel, error) {
	l, err := c.doList(ctx, "GET", "api/v1/channels", nil)
	if err != nil {
		return nil, err
	}
	channels := make([]Channel, len(l))
	for i, m := range l {
		channels[i] = Channel(m)
	}
	return channels, nil
}

// FetchResult is the result of a channel fetch. Binary responses (for
// example a JPEG snapshot) bypass JSON decoding and carry the raw payload.
type FetchResult struct {
	MimeType string
	Binary   bool
	Data     []byte
	Values   mxj.Map
}

// ChannelGet fetches the current value of the channels selected by body
// (see BuildGetRequest).
func (c *Client) ChannelGet(ctx context.Context, body mxj.Map) (FetchResult, error) {
	status, mime, buf, err := c.doReq(ctx, "PUT", "api/v1/channels/get", body)
	if err != nil {
		return FetchResult{}, err
	}
	if status != http.StatusOK {
		return FetchResult{}, fmt.Errorf("%w %d: %s", ErrBadStatusCode, status, strings.TrimSpace(string(buf)))
	}
	if !strings.Contains(mime, "json") {
		return FetchResult{
			MimeType: mime,
			Binary:   true,
			Data:     buf,
		}, nil
	}
	m, err := mxj.NewMapJson(buf)
	if err != nil {
		return FetchResult{}, ErrInvalidResponse
	}
	return FetchResult{
		MimeType: mime,
		Data:     buf,
		Values:   m,
	}, nil
}

// ChannelSet sends a value to the channels selected by body (see
// BuildSetRequest), returning the raw acknowledgement.
func (c *Client) ChannelSet(ctx context.Context, body mxj.Map) ([]byte, error) {
	status, _, buf, err := c.doReq(ctx, "PUT", "api/v1/channels/set", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w %d: %s", ErrBadStatusCode, status, strings.TrimSpace(string(buf)))
	}
	return buf, nil
}

// doTags sends a tag update for the ids under the selector field name,
// returning the number of affected descriptions.
func (c *Client) doTags(ctx context.Context, method, path, field string, ids, tags []string) (int, error) {
	sel := make([]interface{}, len(ids))
	for i, id := range ids {
		sel[i] = map[string]interface{}{"id": id}
	}
	body := mxj.Map{
		field:  sel,
		"tags": tags,
	}
	status, _, buf, err := c.doReq(ctx, method, path, body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("%w %d: %s", ErrBadStatusCode, status, strings.TrimSpace(string(buf)))
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(buf)))
	if err != nil {
		return 0, ErrInvalidResponse
	}
	return n, nil
}

// AddServiceTags adds tags to the identified services.
func (c *Client) AddServiceTags(ctx context.Context, ids, tags []string) (int, error) {
	return c.doTags(ctx, "POST", "api/v1/services/tags", "services", ids, tags)
}

// RemoveServiceTags removes tags from the identified services.
func (c *Client) RemoveServiceTags(ctx context.Context, ids, tags []string) (int, error) {
	return c.doTags(ctx, "DELETE", "api/v1/services/tags", "services", ids, tags)
}

// AddChannelTags adds tags to the identified channels.
func (c *Client) AddChannelTags(ctx context.Context, ids, tags []string) (int, error) {
	return c.doTags(ctx, "POST", "api/v1/channels/tags", "channels", ids, tags)
}

// RemoveChannelTags removes tags from the identified channels.
func (c *Client) RemoveChannelTags(ctx context.Context, ids, tags []string) (int, error) {
	return c.doTags(ctx, "DELETE", "api/v1/channels/tags", "channels", ids, tags)
}
