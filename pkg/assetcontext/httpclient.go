package assetcontext

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/opsforge/execcore/pkg/domain"
	"github.com/opsforge/execcore/pkg/shared/apperr"
	"github.com/opsforge/execcore/pkg/shared/httpclient"
)

// HTTPInventoryClient is the production InventoryClient, backed by the
// shared outbound *http.Client tuning every service client in this
// module uses.
type HTTPInventoryClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPInventoryClient builds a client against the asset inventory
// service at baseURL (no trailing slash).
func NewHTTPInventoryClient(baseURL string) *HTTPInventoryClient {
	return &HTTPInventoryClient{baseURL: baseURL, http: httpclient.NewClient(httpclient.DefaultClientConfig())}
}

func (c *HTTPInventoryClient) FindByAssetID(ctx context.Context, tenantID, assetID string) (*domain.AssetRecord, error) {
	var out domain.AssetRecord
	if err := c.get(ctx, tenantID, fmt.Sprintf("/assets/%s", url.PathEscape(assetID)), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPInventoryClient) Search(ctx context.Context, tenantID string, mode LookupMode, value string, filter Filter) ([]domain.AssetRecord, error) {
	q := url.Values{}
	q.Set("mode", string(mode))
	if value != "" {
		q.Set("value", value)
	}
	if filter.OSType != "" {
		q.Set("os_type", filter.OSType)
	}
	if filter.ServiceType != "" {
		q.Set("service_type", filter.ServiceType)
	}
	if filter.Environment != "" {
		q.Set("environment", filter.Environment)
	}
	if filter.IsActive != nil {
		q.Set("is_active", strconv.FormatBool(*filter.IsActive))
	}

	var out []domain.AssetRecord
	if err := c.get(ctx, tenantID, "/assets", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPInventoryClient) ConnectionProfile(ctx context.Context, tenantID, host string) (*domain.ConnectionProfile, error) {
	q := url.Values{}
	q.Set("host", host)

	var out domain.ConnectionProfile
	if err := c.get(ctx, tenantID, "/connection-profile", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPInventoryClient) get(ctx context.Context, tenantID, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "asset inventory: build request")
	}
	req.Header.Set("X-Tenant-ID", tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(err, apperr.KindTransient, "asset inventory: request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperr.New(apperr.KindNotFound, "asset not found")
	case resp.StatusCode >= 500:
		return apperr.Newf(apperr.KindTransient, "asset inventory: server error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return apperr.Newf(apperr.KindInternal, "asset inventory: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "asset inventory: decode response")
	}
	return nil
}
