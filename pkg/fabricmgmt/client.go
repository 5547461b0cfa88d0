// Package fabricmgmt talks to the message-broker management API to
// provision and revoke worker principals. A worker principal is scoped
// to publishing on the result/heartbeat streams and subscribing to its
// own and the broadcast command streams, nothing else.
package fabricmgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Config struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

type Client struct {
	config Config
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: timeout},
	}
}

// Permissions restrict what streams a principal may touch.
type Permissions struct {
	Publish   []string `json:"publish"`
	Subscribe []string `json:"subscribe"`
}

// Principal is what the API hands back on creation. The password is
// returned exactly once and never persisted by the control plane.
type Principal struct {
	Handle   string `json:"handle"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Client) CreatePrincipal(ctx context.Context, username string, perms Permissions) (*Principal, error) {
	body, err := json.Marshal(struct {
		Username    string      `json:"username"`
		Permissions Permissions `json:"permissions"`
	}{Username: username, Permissions: perms})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"/api/principals", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create principal: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("create principal: unexpected status %d: %s", resp.StatusCode, msg)
	}

	var p Principal
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode principal: %w", err)
	}
	if p.Handle == "" {
		p.Handle = p.Username
	}
	return &p, nil
}

// DeletePrincipal revokes a principal. Deleting an absent principal is
// not an error.
func (c *Client) DeletePrincipal(ctx context.Context, handle string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.URL+"/api/principals/"+handle, nil)
	if err != nil {
		return err
	}
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("delete principal: unexpected status %d: %s", resp.StatusCode, msg)
	}
	return nil
}
