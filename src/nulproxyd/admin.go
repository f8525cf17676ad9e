package nulproxyd

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// AdminClient queries a running daemon's HTTP API.
type AdminClient struct {
	endpoint string
	hc       *http.Client
}

func NewAdminClient(endpoint string) *AdminClient {
	return &AdminClient{
		endpoint: endpoint,
		hc:       http.DefaultClient,
	}
}

func (c *AdminClient) GetStatus(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.endpoint+"/status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("status endpoint returned %v", resp.Status)
	}
	ret := &Status{}
	if err := json.NewDecoder(resp.Body).Decode(ret); err != nil {
		return nil, err
	}
	return ret, nil
}
