package neso

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/common"
	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// Dataset resource IDs on the NESO datastore. These identify the DFS
// bid-eligibility and utilization tables and only change when NESO
// republishes the dataset.
const (
	DefaultBidsTable        = "f5605e2b-b677-424c-8df7-d0ce4ee03cef"
	DefaultUtilizationTable = "cc36fff5-5f6f-4fde-8932-c935d982ecd8"
)

// RequestError is a network-level or HTTP-level failure (non-2xx, non-409).
type RequestError struct {
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("neso api returned status %d", e.StatusCode)
}

// APIResponseError is a 2xx response whose body is unusable: success=false
// or a missing result field.
type APIResponseError struct {
	Message string
}

func (e *APIResponseError) Error() string {
	return fmt.Sprintf("neso api response error: %s", e.Message)
}

// Client queries the NESO datastore SQL-over-HTTP API. It performs no
// retries; recovery from a failed query is the next poll cycle.
type Client struct {
	apiURL           string
	bidsTable        string
	utilizationTable string
	bidsLimit        int
	utilizationLimit int
	marketWideBids   bool
	client           *http.Client
}

// Configured sets up the client and registers its flags.
func Configured() *Client {
	c := &Client{
		client: common.HTTPClient(30 * time.Second),
	}
	apiURL := lflag.String("neso-api-url", "https://api.neso.energy/api/3/action/datastore_search_sql", "URL for the NESO datastore SQL API")
	bidsTable := lflag.String("bids-table", DefaultBidsTable, "Resource ID of the DFS bid-eligibility table")
	utilizationTable := lflag.String("utilization-table", DefaultUtilizationTable, "Resource ID of the DFS utilization table")
	bidsLimit := lflag.Int("bids-limit", 1000, "Maximum bid-eligibility rows to fetch per cycle")
	utilizationLimit := lflag.Int("utilization-limit", 10000, "Maximum utilization rows to fetch per cycle")
	marketWideBids := lflag.Bool("market-wide-bids", false, "Fetch bid-eligibility rows for all participants instead of only the tracked one")

	lflag.Do(func() {
		c.apiURL = *apiURL
		c.bidsTable = *bidsTable
		c.utilizationTable = *utilizationTable
		c.bidsLimit = *bidsLimit
		c.utilizationLimit = *utilizationLimit
		c.marketWideBids = *marketWideBids
	})

	return c
}

// NewClient builds a client against a specific API URL, primarily for tests.
func NewClient(apiURL string, hc *http.Client) *Client {
	return &Client{
		apiURL:           apiURL,
		bidsTable:        DefaultBidsTable,
		utilizationTable: DefaultUtilizationTable,
		bidsLimit:        1000,
		utilizationLimit: 10000,
		client:           hc,
	}
}

// Validate ensures the configuration is valid.
func (c *Client) Validate() error {
	if c.apiURL == "" {
		return fmt.Errorf("neso-api-url is required")
	}
	if _, err := url.Parse(c.apiURL); err != nil {
		return fmt.Errorf("failed to parse neso api url (%s): %w", c.apiURL, err)
	}
	if c.bidsTable == "" || c.utilizationTable == "" {
		return fmt.Errorf("bids-table and utilization-table are required")
	}
	return nil
}

// FetchBids retrieves the most recent bid-eligibility rows. The participant
// filter is skipped in market-wide mode.
func (c *Client) FetchBids(ctx context.Context, participant string) ([]types.RawRecord, error) {
	if c.marketWideBids {
		participant = ""
	}
	return c.Query(ctx, BidsSQL(c.bidsTable, participant, c.bidsLimit))
}

// FetchUtilization retrieves the most recent utilization rows for all
// participants, so the market-wide highest accepted bid can be derived.
func (c *Client) FetchUtilization(ctx context.Context) ([]types.RawRecord, error) {
	return c.Query(ctx, UtilizationSQL(c.utilizationTable, c.utilizationLimit))
}

// apiEnvelope is the datastore_search_sql response shape.
type apiEnvelope struct {
	Success bool `json:"success"`
	Result  *struct {
		Records []types.RawRecord `json:"records"`
	} `json:"result"`
	Error json.RawMessage `json:"error"`
}

// Query runs one SQL statement against the datastore. An HTTP 409 is a
// transient conflict (rate limiting) and yields an empty record set, not an
// error, so the cycle can still publish partial results.
func (c *Client) Query(ctx context.Context, sql string) ([]types.RawRecord, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	params := url.Values{}
	params.Set("sql", sql)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	log.Ctx(ctx).DebugContext(ctx, "querying neso datastore", slog.String("sql", sql))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query neso api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		log.Ctx(ctx).WarnContext(ctx, "neso api conflict, likely rate limited, treating as empty result")
		return []types.RawRecord{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{StatusCode: resp.StatusCode}
	}

	dec := json.NewDecoder(resp.Body)
	// keep numerics as json.Number so normalization can distinguish ints
	dec.UseNumber()
	var env apiEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, &APIResponseError{Message: fmt.Sprintf("failed to decode body: %v", err)}
	}
	if !env.Success {
		msg := "unknown error"
		if len(env.Error) > 0 {
			msg = string(env.Error)
		}
		return nil, &APIResponseError{Message: msg}
	}
	if env.Result == nil {
		return nil, &APIResponseError{Message: "missing result field"}
	}

	log.Ctx(ctx).DebugContext(ctx, "fetched neso records", slog.Int("count", len(env.Result.Records)))
	return env.Result.Records, nil
}

// BidsSQL builds the bid-eligibility query. An empty participant yields the
// market-wide variant with no filter predicate.
func BidsSQL(table, participant string, limit int) string {
	var where string
	if participant != "" {
		where = fmt.Sprintf(` WHERE "%s" LIKE '%%%s%%'`, ColumnSQL(types.ColEligibleBids), EscapeSQL(participant))
	}
	return fmt.Sprintf(`SELECT COUNT(*) OVER () AS _count, * FROM "%s"%s ORDER BY "_id" DESC LIMIT %d`, table, where, limit)
}

// UtilizationSQL builds the utilization query, unfiltered by participant.
func UtilizationSQL(table string, limit int) string {
	return fmt.Sprintf(`SELECT * FROM "%s" ORDER BY "_id" DESC LIMIT %d`, table, limit)
}

// EscapeSQL doubles single quotes for embedding in a SQL string literal.
func EscapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ColumnSQL escapes a column name for embedding in a quoted identifier.
func ColumnSQL(col string) string {
	return strings.ReplaceAll(col, `"`, `""`)
}
