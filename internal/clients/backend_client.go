package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gigpay/treasuryops/internal/entity"
)

// BackendClient talks to the primary treasury source: the platform backend
// that indexes treasury state, activity and payment intents. Payloads are
// loosely typed on the wire, so every numeric field is normalized through
// entity.ToDecimal at this boundary.
type BackendClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewBackendClient creates a client for the backend API at baseURL.
func NewBackendClient(baseURL, apiKey string) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type overviewResponse struct {
	Totals   map[string]any            `json:"totals"`
	PerAsset map[string]map[string]any `json:"perAsset"`
}

type historyResponse struct {
	Rows []historyRow `json:"rows"`
}

type historyRow struct {
	Timestamp     string  `json:"timestamp"`
	AssetSymbol   *string `json:"assetSymbol"`
	Total         any     `json:"total"`
	Idle          any     `json:"idle"`
	YieldDeployed any     `json:"yieldDeployed"`
	EscrowLocked  any     `json:"escrowLocked"`
}

type activityResponse struct {
	Rows []entity.ActivityEvent `json:"rows"`
}

type intentsResponse struct {
	Intents []entity.PaymentIntent `json:"intents"`
}

type jobsResponse struct {
	Jobs []entity.Job `json:"jobs"`
}

func totalsFromWire(m map[string]any) entity.Totals {
	return entity.Totals{
		Total:         entity.ToDecimal(m["total"]),
		Idle:          entity.ToDecimal(m["idle"]),
		YieldDeployed: entity.ToDecimal(m["yieldDeployed"]),
		EscrowLocked:  entity.ToDecimal(m["escrowLocked"]),
	}
}

// Overview fetches current combined and per-asset allocation totals.
func (c *BackendClient) Overview(ctx context.Context) (entity.Totals, entity.PerAssetTotals, error) {
	var resp overviewResponse
	if err := c.get(ctx, "/api/treasury/overview", nil, &resp); err != nil {
		return entity.Totals{}, nil, errors.Wrap(err, "fetch treasury overview")
	}

	perAsset := make(entity.PerAssetTotals, len(resp.PerAsset))
	for symbol, raw := range resp.PerAsset {
		perAsset[symbol] = totalsFromWire(raw)
	}
	return totalsFromWire(resp.Totals), perAsset, nil
}

// History fetches combined allocation snapshots for the range. Per-asset
// rows (assetSymbol set) are dropped; only combined rows feed the series.
func (c *BackendClient) History(ctx context.Context, r entity.Range) ([]entity.Snapshot, error) {
	query := url.Values{"range": {string(r)}}

	var resp historyResponse
	if err := c.get(ctx, "/api/treasury/history", query, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch treasury history")
	}

	snaps := make([]entity.Snapshot, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if row.AssetSymbol != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339, row.Timestamp)
		if err != nil {
			continue
		}
		snaps = append(snaps, entity.Snapshot{
			Timestamp:     ts,
			Total:         entity.ToDecimal(row.Total),
			Idle:          entity.ToDecimal(row.Idle),
			YieldDeployed: entity.ToDecimal(row.YieldDeployed),
			EscrowLocked:  entity.ToDecimal(row.EscrowLocked),
		})
	}
	return snaps, nil
}

// Activity fetches the newest indexed activity events, capped at limit.
func (c *BackendClient) Activity(ctx context.Context, limit int) ([]entity.ActivityEvent, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}

	var resp activityResponse
	if err := c.get(ctx, "/api/treasury/activity", query, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch treasury activity")
	}
	return resp.Rows, nil
}

// PaymentIntents fetches treasury-funded payment intents.
func (c *BackendClient) PaymentIntents(ctx context.Context) ([]entity.PaymentIntent, error) {
	var resp intentsResponse
	if err := c.get(ctx, "/api/payment-intents", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch payment intents")
	}
	return resp.Intents, nil
}

// Jobs fetches jobs created by owner, including private ones. There is no
// ledger-side fallback for this endpoint.
func (c *BackendClient) Jobs(ctx context.Context, owner string) ([]entity.Job, error) {
	query := url.Values{
		"createdBy":      {owner},
		"includePrivate": {"true"},
	}

	var resp jobsResponse
	if err := c.get(ctx, "/api/jobs", query, &resp); err != nil {
		return nil, errors.Wrap(err, "fetch jobs")
	}
	return resp.Jobs, nil
}

func (c *BackendClient) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
