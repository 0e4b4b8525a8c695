package stackup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stackup-dev/stackup/ports"
)

// Client talks to the status server of a running stackup.
type Client struct {
	// Addr is the host:port of the status server.
	Addr string
	HTTP *http.Client
}

// NewClient returns a client for the status server at addr.
func NewClient(addr string) *Client {
	return &Client{
		Addr: addr,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

// Processes returns the status of every process.
func (c *Client) Processes(ctx context.Context) ([]ProcessStatus, error) {
	var statuses []ProcessStatus
	if err := c.getJSON(ctx, "/processes", &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Process returns the status of the named process.
func (c *Client) Process(ctx context.Context, name string) (*ProcessStatus, error) {
	var status ProcessStatus
	if err := c.getJSON(ctx, "/processes/"+url.PathEscape(name), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ports returns the port assignment of the running stack.
func (c *Client) Ports(ctx context.Context) (ports.Assignment, error) {
	var a ports.Assignment
	if err := c.getJSON(ctx, "/ports", &a); err != nil {
		return nil, err
	}
	return a, nil
}

// Log returns the last lines of output of the named process.
func (c *Client) Log(ctx context.Context, name string, lines int) ([]byte, error) {
	resp, err := c.get(ctx, "/processes/"+url.PathEscape(name)+"/log?lines="+strconv.Itoa(lines))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("cannot decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.Addr+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s: %s", path, resp.Status, bytes.TrimSpace(body))
	}
	return resp, nil
}
