package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/merkle-airdrop/airdrop/config"
	"github.com/merkle-airdrop/airdrop/internal/network"
	"github.com/merkle-airdrop/airdrop/internal/protocol"
)

// Client queries a registry served over HTTP by another airdropd.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Registry = (*Client)(nil)

func NewClient(baseURL string, netConf config.NetworkConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: network.NewHTTPClient(netConf),
	}
}

func (c *Client) IsAllowed(ctx context.Context, id string, addr common.Address) (bool, error) {
	var resp protocol.RegistryAllowedResponse
	if err := c.get(ctx, "/registry/"+url.PathEscape(id)+"/allowed/"+addr.Hex(), &resp); err != nil {
		return false, err
	}
	return resp.Allowed, nil
}

func (c *Client) IsExpired(ctx context.Context, id string) (bool, error) {
	var resp protocol.RegistryExpiredResponse
	if err := c.get(ctx, "/registry/"+url.PathEscape(id)+"/expired", &resp); err != nil {
		return false, err
	}
	return resp.Expired, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("registry: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// A 404 from a missing route or a wrong base URL is a transport
		// problem; only the registry's own answer means the airdrop is unknown.
		var e protocol.ErrorResponse
		if resp.StatusCode == http.StatusNotFound && json.Unmarshal(body, &e) == nil && e.Reason == ReasonUnknownAirdrop {
			return fmt.Errorf("%w: %s", ErrUnknownAirdrop, e.Error)
		}
		return fmt.Errorf("registry: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("registry: decode %s: %w", path, err)
	}
	return nil
}
