package ipc

import (
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

const rpcServiceName = "Flume"

// Client provides RPC access to a running daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the daemon advertising the given loopback port.
func Dial(port int, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close ends the session. For delegated execute runs this is the
// end-of-session signal; the daemon keeps running the submitted tasks.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// SubmitTask forwards one task with its resolved option set.
func (c *Client) SubmitTask(name string, options map[string]any) (*SubmitTaskResponse, error) {
	var resp SubmitTaskResponse
	req := SubmitTaskRequest{Name: name, Options: options}
	if err := c.client.Call(rpcServiceName+".SubmitTask", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call(rpcServiceName+".Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown(finishQueue bool) (*ShutdownResponse, error) {
	var resp ShutdownResponse
	req := ShutdownRequest{FinishQueue: finishQueue}
	if err := c.client.Call(rpcServiceName+".Shutdown", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History fetches recent run records.
func (c *Client) History(taskName string, limit int) (*HistoryResponse, error) {
	var resp HistoryResponse
	req := HistoryRequest{TaskName: taskName, Limit: limit}
	if err := c.client.Call(rpcServiceName+".History", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	var resp DatabaseHealthResponse
	if err := c.client.Call(rpcServiceName+".DatabaseHealth", DatabaseHealthRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call(rpcServiceName+".LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
