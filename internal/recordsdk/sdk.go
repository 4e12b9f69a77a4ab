// Package recordsdk is the client for the remote record service API.
//
// It wraps the cursor-paginated record listing plus record create/update
// endpoints and normalizes transport and API errors so callers can classify
// them (transient, rate-limited, auth) without inspecting HTTP details.
package recordsdk

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/imroc/req/v3"
	"github.com/offlinehq/recbox/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-Recbox-Version"
	HeaderAccount   = "X-Recbox-Account"
	HeaderDeviceId  = "X-Recbox-Device-Id"
)

var UserAgent = fmt.Sprintf("RecBox/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// TokenProvider supplies a bearer credential for each remote call. The SDK
// consumes tokens, it never refreshes or stores them.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider returning a fixed credential.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", ErrNoCredential
	}
	return string(t), nil
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	AccountID string
	Tokens    TokenProvider
	Timeout   time.Duration
}

// Client is the record service API client.
type Client struct {
	http    *req.Client
	baseURL string

	Records *RecordsAPI
}

// New creates a new record service client.
func New(opts *Options) (*Client, error) {
	if opts == nil || opts.BaseURL == "" {
		return nil, ErrNoServerURL
	}
	if opts.Tokens == nil {
		return nil, ErrNoCredential
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := req.C().
		SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderVersion, version.Version).
		SetCommonHeader(HeaderDeviceId, DeviceID).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	if opts.AccountID != "" {
		client.SetCommonHeader(HeaderAccount, opts.AccountID)
	}

	// Inject the bearer credential per request. Tokens come from the
	// credential store and may rotate between calls.
	tokens := opts.Tokens
	client.OnBeforeRequest(func(c *req.Client, r *req.Request) error {
		token, err := tokens.Token()
		if err != nil {
			return fmt.Errorf("credential: %w", err)
		}
		r.SetBearerAuthToken(token)
		return nil
	})

	return &Client{
		http:    client,
		baseURL: opts.BaseURL,
		Records: newRecordsAPI(client),
	}, nil
}

// Close releases client resources.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// ErrNoCredential is returned when the token provider has no usable credential.
var ErrNoCredential = errors.New("sdk: credential missing")

// ErrNoServerURL is returned when the client is built without a server URL.
var ErrNoServerURL = errors.New("sdk: server url missing")
