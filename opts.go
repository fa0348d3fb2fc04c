package foxbox

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kenshaw/httplog"
)

// ClientOption is a foxbox client option.
type ClientOption func(*Client)

// WithURL is a client option specifying the url of the foxbox.
func WithURL(rawurl string) ClientOption {
	return func(c *Client) {
		if !strings.HasSuffix(rawurl, "/") {
			rawurl += "/"
		}
		c.rawurl = rawurl
	}
}

// WithHostPort is a client option specifying the foxbox host and port.
func WithHostPort(host string, port int) ClientOption {
	return func(c *Client) {
		WithURL(fmt.Sprintf("http://%s:%d/", host, port))(c)
	}
}

// WithHTTPClient is a client option specifying the http.Client used.
func WithHTTPClient(cl *http.Client) ClientOption {
	return func(c *Client) {
		c.cl = cl
	}
}

// WithTimeout is a client option specifying the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.cl.Timeout = timeout
	}
}

// WithTransport is a client option specifying the http transport used.
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.cl.Transport = transport
	}
}

// WithToken is a client option specifying a previously established session
// token.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogf is a client option specifying a logging function for http
// requests and responses.
func WithLogf(logf func(string, ...interface{})) ClientOption {
	return func(c *Client) {
		WithTransport(httplog.NewPrefixedRoundTripLogger(c.cl.Transport, logf))(c)
	}
}
