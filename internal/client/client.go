package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// TokenSource yields the bearer token for the next request, or "".
type TokenSource interface {
	Token() string
}

type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenSource
	onUnauthorized func()
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithUnauthorized runs fn on every 401, e.g. to drop the stored session.
func WithUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromEnv uses CSSS_API_URL.
func FromEnv(tokens TokenSource, opts ...Option) *Client {
	base := os.Getenv("CSSS_API_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return New(base, tokens, opts...)
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

// do sends req and returns the raw body of a 2xx response.
func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	rsp, err := c.http.Do(req)
	if err != nil {
		log.Debugf("%s %s: %s", req.Method, req.URL.Path, err)
		return nil, nil, networkError(err)
	}
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, nil, networkError(err)
	}

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		if rsp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return rsp, nil, errorFromBody(rsp.StatusCode, body)
	}
	return rsp, body, nil
}

// call decodes the data field of the response envelope into out and
// returns the envelope message.
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) (string, error) {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return "", err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return "", err
	}
	_, raw, err := c.do(req)
	if err != nil {
		return "", err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &APIError{Status: http.StatusOK, Message: msgUnexpected, Err: err}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", &APIError{Status: http.StatusOK, Message: msgUnexpected, Err: err}
		}
	}
	return env.Message, nil
}

func (c *Client) upload(ctx context.Context, path, field, filename string, r io.Reader, out interface{}) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	_, raw, err := c.do(req)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Status: http.StatusOK, Message: msgUnexpected, Err: err}
	}
	return json.Unmarshal(env.Data, out)
}

// download returns the body and the filename from Content-Disposition.
func (c *Client) download(ctx context.Context, path string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", "application/pdf")

	rsp, body, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	filename := ""
	if _, params, err := mime.ParseMediaType(rsp.Header.Get("Content-Disposition")); err == nil {
		filename = params["filename"]
	}
	return body, filename, nil
}
