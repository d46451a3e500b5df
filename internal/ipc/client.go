package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Folio.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Folio.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Folio.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Add records a new acquisition request.
func (c *Client) Add(externalID, title, author string, priority int) (*AddResponse, error) {
	var resp AddResponse
	req := AddRequest{ExternalID: externalID, Title: title, Author: author, Priority: priority}
	if err := c.client.Call("Folio.Add", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns catalog items optionally filtered by statuses.
func (c *Client) List(statuses []string) (*ListResponse, error) {
	var resp ListResponse
	req := ListRequest{Statuses: statuses}
	if err := c.client.Call("Folio.List", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Describe returns details for a single catalog item.
func (c *Client) Describe(id int64) (*DescribeResponse, error) {
	var resp DescribeResponse
	req := DescribeRequest{ID: id}
	if err := c.client.Call("Folio.Describe", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History returns recent status transitions for a catalog item.
func (c *Client) History(id int64, limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	req := HistoryRequest{ID: id, Limit: limit}
	if err := c.client.Call("Folio.History", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clear removes all items from the catalog.
func (c *Client) Clear() (*ClearResponse, error) {
	var resp ClearResponse
	if err := c.client.Call("Folio.Clear", ClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearCompleted removes completed and skipped items from the catalog.
func (c *Client) ClearCompleted() (*ClearCompletedResponse, error) {
	var resp ClearCompletedResponse
	if err := c.client.Call("Folio.ClearCompleted", ClearCompletedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClearFailed removes permanently failed items from the catalog.
func (c *Client) ClearFailed() (*ClearFailedResponse, error) {
	var resp ClearFailedResponse
	if err := c.client.Call("Folio.ClearFailed", ClearFailedRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reset walks items stuck in processing states back to their queued statuses.
func (c *Client) Reset() (*ResetResponse, error) {
	var resp ResetResponse
	if err := c.client.Call("Folio.Reset", ResetRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry retries failed items. An empty slice retries all failed items.
func (c *Client) Retry(ids []int64) (*RetryResponse, error) {
	var resp RetryResponse
	req := RetryRequest{IDs: ids}
	if err := c.client.Call("Folio.Retry", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Remove removes catalog items by ID.
func (c *Client) Remove(ids []int64) (*RemoveResponse, error) {
	var resp RemoveResponse
	req := RemoveRequest{IDs: ids}
	if err := c.client.Call("Folio.Remove", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns catalog diagnostics.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.client.Call("Folio.Health", HealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call("Folio.DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quota retrieves the mirror quota reading.
func (c *Client) Quota(refresh bool) (*QuotaResponse, error) {
	var resp QuotaResponse
	req := QuotaRequest{Refresh: refresh}
	if err := c.client.Call("Folio.Quota", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Preflight runs the environment checks via the daemon.
func (c *Client) Preflight() (*PreflightResponse, error) {
	var resp PreflightResponse
	if err := c.client.Call("Folio.Preflight", PreflightRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Folio.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
