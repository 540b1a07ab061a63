// Package watttime is a carbon intensity source backed by the WattTime
// marginal emissions API.
package watttime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/location"
)

// Name is the data source name reported in logs and errors.
const Name = "watttime"

// DefaultBaseURL is the public WattTime v2 API.
const DefaultBaseURL = "https://api2.watttime.org/v2/"

// LocationResolver maps a region to a geoposition.
type LocationResolver interface {
	Geoposition(loc carbon.Location) (location.Geoposition, error)
}

// Config configures a Client.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// Client implements datasource.CarbonIntensitySource. It is safe for
// concurrent use; the auth token is shared and refreshed under a mutex.
type Client struct {
	baseURL   *url.URL
	username  string
	password  string
	http      *http.Client
	locations LocationResolver
	logger    zerolog.Logger

	mu    sync.Mutex
	token string
}

var _ datasource.CarbonIntensitySource = (*Client)(nil)

// errUnauthorized marks a response that should trigger a token refresh.
var errUnauthorized = errors.New("unauthorized")

// New returns a WattTime client.
func New(cfg Config, locations LocationResolver, logger zerolog.Logger) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base url %q: %w", Name, cfg.BaseURL, err)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("%s: username and password are required", Name)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:   base,
		username:  cfg.Username,
		password:  cfg.Password,
		http:      httpClient,
		locations: locations,
		logger:    logger.With().Str("source", Name).Logger(),
	}, nil
}

// Name implements datasource.CarbonIntensitySource.
func (c *Client) Name() string {
	return Name
}

// GetCarbonIntensity returns MOER samples converted to gCO2/kWh for each
// location over [start, end].
func (c *Client) GetCarbonIntensity(ctx context.Context, locations []carbon.Location, start, end time.Time) ([]carbon.EmissionsData, error) {
	var out []carbon.EmissionsData
	for _, loc := range locations {
		ba, err := c.balancingAuthority(ctx, loc)
		if err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("ba", ba.Abbreviation)
		q.Set("starttime", start.UTC().Format(time.RFC3339))
		q.Set("endtime", end.UTC().Format(time.RFC3339))

		var points []gridEmissionDataPoint
		if err := c.getJSON(ctx, pathData, q, &points); err != nil {
			return nil, err
		}
		out = append(out, toEmissionsData(loc.RegionName, points)...)
	}
	return out, nil
}

// GetCurrentForecast returns the current MOER forecast for loc.
func (c *Client) GetCurrentForecast(ctx context.Context, loc carbon.Location) (carbon.Forecast, error) {
	ba, err := c.balancingAuthority(ctx, loc)
	if err != nil {
		return carbon.Forecast{}, err
	}

	q := url.Values{}
	q.Set("ba", ba.Abbreviation)

	var f forecast
	if err := c.getJSON(ctx, pathForecast, q, &f); err != nil {
		return carbon.Forecast{}, err
	}

	return carbon.Forecast{
		GeneratedAt:  f.GeneratedAt.UTC(),
		Location:     loc.RegionName,
		ForecastData: toEmissionsData(loc.RegionName, f.ForecastData),
	}, nil
}

func toEmissionsData(region string, points []gridEmissionDataPoint) []carbon.EmissionsData {
	out := make([]carbon.EmissionsData, 0, len(points))
	for _, p := range points {
		var d time.Duration
		if p.Frequency != nil {
			d = time.Duration(*p.Frequency) * time.Second
		}
		out = append(out, carbon.EmissionsData{
			Location: region,
			Time:     p.PointTime.UTC(),
			Rating:   p.Value * lbsPerMWhToGramsPerKWh,
			Duration: d,
		})
	}
	return out
}

func (c *Client) balancingAuthority(ctx context.Context, loc carbon.Location) (balancingAuthority, error) {
	pos, err := c.locations.Geoposition(loc)
	if err != nil {
		return balancingAuthority{}, fmt.Errorf("%s: %w: %w", Name, datasource.ErrNotFound, err)
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%g", pos.Latitude))
	q.Set("longitude", fmt.Sprintf("%g", pos.Longitude))

	var ba balancingAuthority
	if err := c.getJSON(ctx, pathBalancingAuthorityFrom, q, &ba); err != nil {
		return balancingAuthority{}, err
	}
	if ba.Abbreviation == "" {
		return balancingAuthority{}, fmt.Errorf("%s: balancing authority for %q: %w", Name, loc.RegionName, datasource.ErrNotFound)
	}
	return ba, nil
}

// getJSON performs an authenticated GET, logging in first when no token is
// cached and once more if the token is rejected.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	token, err := c.currentToken(ctx, "")
	if err != nil {
		return err
	}

	err = c.doGet(ctx, path, query, token, out)
	if errors.Is(err, errUnauthorized) {
		c.logger.Debug().Str("path", path).Msg("token rejected, logging in again")
		if token, err = c.currentToken(ctx, token); err != nil {
			return err
		}
		err = c.doGet(ctx, path, query, token, out)
	}
	if errors.Is(err, errUnauthorized) {
		return fmt.Errorf("%s: %s: %w", Name, path, err)
	}
	return err
}

// currentToken returns the cached token, logging in when none is cached or
// when the cached token equals rejected.
func (c *Client) currentToken(ctx context.Context, rejected string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.token != rejected {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.JoinPath(pathLogin).String(), nil)
	if err != nil {
		return "", fmt.Errorf("%s: build login request: %w", Name, err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: login: %w", Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: login failed with status %d", Name, resp.StatusCode)
	}

	var result loginResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%s: decode login response: %w", Name, err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("%s: login returned an empty token", Name)
	}

	c.token = result.Token
	c.logger.Debug().Msg("logged in")
	return c.token, nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, token string, out any) error {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: build %s request: %w", Name, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", Name, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("request completed")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", Name, path, datasource.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s returned status %d: %s", Name, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s response: %w", Name, path, err)
	}
	return nil
}
