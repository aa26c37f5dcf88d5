package bridge

import (
	"context"
	"encoding/json"
	"fmt"
)

// InitializeParams is the subset of the LSP initialize request the
// bridge needs to send on behalf of the client it's proxying for.
type InitializeParams struct {
	ProcessID             *int           `json:"processId"`
	RootURI               *string        `json:"rootUri"`
	Capabilities          map[string]any `json:"capabilities"`
	InitializationOptions any            `json:"initializationOptions,omitempty"`
}

// Handshake drives a freshly spawned Connection through initialize /
// initialized and transitions it to StateReady on success. A
// connection that fails the handshake is left in StateFailed by the
// underlying Call's read-loop error path, or explicitly failed here if
// the server answers with an error.
func Handshake(ctx context.Context, c *Connection, params InitializeParams) (json.RawMessage, error) {
	result, err := c.Call(ctx, "initialize", params)
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("initialize %s: %w", c.name, err)
	}
	if err := c.Notify("initialized", struct{}{}); err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("initialized %s: %w", c.name, err)
	}
	c.setState(StateReady)
	return result, nil
}

// Shutdown drives the standard LSP shutdown / exit sequence before the
// caller tears down the process via Connection.Close.
func Shutdown(ctx context.Context, c *Connection) error {
	if _, err := c.Call(ctx, "shutdown", nil); err != nil {
		return fmt.Errorf("shutdown %s: %w", c.name, err)
	}
	return c.Notify("exit", nil)
}
