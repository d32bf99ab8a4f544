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

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start its services.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// SessionCreate stores a new session and optionally starts it.
func (c *Client) SessionCreate(req SessionCreateRequest) (*SessionResponse, error) {
	return call[SessionResponse](c, "SessionCreate", req)
}

// SessionStart launches analysis for a pending session.
func (c *Client) SessionStart(id string) (*SessionResponse, error) {
	return call[SessionResponse](c, "SessionStart", SessionIDRequest{ID: id})
}

// SessionCancel cancels a pending or running session.
func (c *Client) SessionCancel(id string) (*SessionResponse, error) {
	return call[SessionResponse](c, "SessionCancel", SessionIDRequest{ID: id})
}

// SessionRetry creates a new session from a failed one.
func (c *Client) SessionRetry(id string, start bool) (*SessionResponse, error) {
	return call[SessionResponse](c, "SessionRetry", SessionRetryRequest{ID: id, Start: start})
}

// SessionShow returns the full result view of a session.
func (c *Client) SessionShow(id string) (*SessionShowResponse, error) {
	return call[SessionShowResponse](c, "SessionShow", SessionIDRequest{ID: id})
}

// SessionList returns sessions filtered by status or patient.
func (c *Client) SessionList(req SessionListRequest) (*SessionListResponse, error) {
	return call[SessionListResponse](c, "SessionList", req)
}

// LogTail returns log events from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// Retention runs the retention janitor immediately.
func (c *Client) Retention() (*RetentionResponse, error) {
	return call[RetentionResponse](c, "Retention", RetentionRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
