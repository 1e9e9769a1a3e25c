package accounting

import (
	"Go2NetAccounting/internal/config"
	"Go2NetAccounting/internal/model"
	"context"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// FetchError is returned when the accounting page cannot be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error listing accounting records from %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("error listing accounting records. Received http status code %d", e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client reads the plaintext accounting page of a MikroTik router
// (http://<router>/accounting/ip.cgi).
type Client struct {
	url            string
	requestTimeout time.Duration
	http           *fasthttp.Client
}

// NewClient creates an accounting client from the router configuration.
func NewClient(cfg config.RouterConfig) *Client {
	connectTimeout := config.Duration(cfg.ConnectTimeout, 3*time.Second)
	requestTimeout := config.Duration(cfg.RequestTimeout, 10*time.Second)

	return &Client{
		url:            cfg.URL(),
		requestTimeout: requestTimeout,
		http: &fasthttp.Client{
			Name:         "ns-accounting",
			ReadTimeout:  requestTimeout,
			WriteTimeout: requestTimeout,
			Dial: func(addr string) (net.Conn, error) {
				return fasthttp.DialTimeout(addr, connectTimeout)
			},
		},
	}
}

// URL returns the accounting page this client polls.
func (c *Client) URL() string {
	return c.url
}

// Fetch downloads the raw accounting page. Any status other than 200 is a FetchError.
func (c *Client) Fetch(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &FetchError{URL: c.url, Err: err}
	}

	deadline := time.Now().Add(c.requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Content-Type", "text/plain")

	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return "", &FetchError{URL: c.url, Err: err}
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", &FetchError{URL: c.url, StatusCode: resp.StatusCode()}
	}

	// The body is owned by resp and released on return, so copy it.
	return string(resp.Body()), nil
}

// LoadRecords fetches the accounting page and parses it. Malformed lines are
// logged as warnings and skipped.
func (c *Client) LoadRecords(ctx context.Context) ([]model.FlowRecord, error) {
	body, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return ParseDocument(body, WarnMalformed(log.WithField("url", c.url))), nil
}

// WarnMalformed returns a ParseDocument reporter that logs each dropped line.
func WarnMalformed(logger log.FieldLogger) func(int, error) {
	return func(lineNo int, err error) {
		logger.WithField("line", lineNo).Warn(err)
	}
}
