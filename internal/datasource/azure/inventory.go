// Package azure is a compute inventory backed by Azure Resource Manager for
// VM metadata and Azure Monitor for CPU utilization.
package azure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
)

// Name is the data source name reported in logs and errors.
const Name = "azure"

// DefaultManagementURL is the Azure Resource Manager endpoint.
const DefaultManagementURL = "https://management.azure.com/"

const (
	computeAPIVersion = "2023-03-01"
	metricsAPIVersion = "2018-01-01"
	cpuMetricName     = "Percentage CPU"
	cloudProvider     = "Azure"
)

// Resource properties that override the configured defaults.
const (
	PropertySubscriptionID = "subscriptionId"
	PropertyResourceGroup  = "resourceGroup"
)

// Config configures an Inventory.
type Config struct {
	ManagementURL  string
	SubscriptionID string
	ResourceGroup  string
	HTTPClient     *http.Client
}

// Inventory implements datasource.ComputeInventory for Azure virtual machines.
type Inventory struct {
	baseURL        *url.URL
	subscriptionID string
	resourceGroup  string
	tokens         TokenProvider
	http           *http.Client
	logger         zerolog.Logger
}

var _ datasource.ComputeInventory = (*Inventory)(nil)

// New returns an Azure inventory.
func New(cfg Config, tokens TokenProvider, logger zerolog.Logger) (*Inventory, error) {
	raw := cfg.ManagementURL
	if raw == "" {
		raw = DefaultManagementURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid management url %q: %w", Name, raw, err)
	}
	if tokens == nil {
		return nil, fmt.Errorf("%s: a token provider is required", Name)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Inventory{
		baseURL:        base,
		subscriptionID: cfg.SubscriptionID,
		resourceGroup:  cfg.ResourceGroup,
		tokens:         tokens,
		http:           httpClient,
		logger:         logger.With().Str("source", Name).Logger(),
	}, nil
}

// Name implements datasource.ComputeInventory.
func (i *Inventory) Name() string {
	return Name
}

type virtualMachine struct {
	Location   string `json:"location"`
	Properties struct {
		HardwareProfile struct {
			VMSize string `json:"vmSize"`
		} `json:"hardwareProfile"`
	} `json:"properties"`
}

type metricsResponse struct {
	Interval string `json:"interval"`
	Value    []struct {
		Name struct {
			Value string `json:"value"`
		} `json:"name"`
		Timeseries []struct {
			Data []struct {
				TimeStamp time.Time `json:"timeStamp"`
				Average   *float64  `json:"average"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"value"`
}

// LookupResource reads the VM's region and size from Resource Manager.
func (i *Inventory) LookupResource(ctx context.Context, resource carbon.ComputeResource) (datasource.ResourceInfo, error) {
	id, err := i.resourceID(resource)
	if err != nil {
		return datasource.ResourceInfo{}, err
	}

	q := url.Values{}
	q.Set("api-version", computeAPIVersion)

	var vm virtualMachine
	if err := i.get(ctx, id, q, &vm); err != nil {
		return datasource.ResourceInfo{}, err
	}
	if vm.Properties.HardwareProfile.VMSize == "" {
		return datasource.ResourceInfo{}, fmt.Errorf("%s: vm %q has no hardware profile", Name, resource.Name)
	}

	return datasource.ResourceInfo{
		Location: carbon.Location{RegionName: vm.Location, CloudProvider: cloudProvider},
		VMSize:   vm.Properties.HardwareProfile.VMSize,
	}, nil
}

// GetUtilization reads the average "Percentage CPU" series. Percentages are
// converted to fractions and every sample takes the response granularity as
// its duration. Points without an average are skipped.
func (i *Inventory) GetUtilization(ctx context.Context, resource carbon.ComputeResource, start, end time.Time) ([]carbon.UtilizationSample, error) {
	id, err := i.resourceID(resource)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("api-version", metricsAPIVersion)
	q.Set("metricnames", cpuMetricName)
	q.Set("aggregation", "Average")
	q.Set("timespan", start.UTC().Format(time.RFC3339)+"/"+end.UTC().Format(time.RFC3339))

	var resp metricsResponse
	if err := i.get(ctx, id+"/providers/Microsoft.Insights/metrics", q, &resp); err != nil {
		return nil, err
	}

	granularity, err := parseISODuration(resp.Interval)
	if err != nil {
		return nil, fmt.Errorf("%s: metrics granularity: %w", Name, err)
	}

	var out []carbon.UtilizationSample
	for _, metric := range resp.Value {
		if !strings.EqualFold(metric.Name.Value, cpuMetricName) {
			continue
		}
		for _, series := range metric.Timeseries {
			for _, point := range series.Data {
				if point.Average == nil {
					continue
				}
				out = append(out, carbon.UtilizationSample{
					Timestamp:      point.TimeStamp.UTC(),
					CPUUtilization: *point.Average / 100,
					Duration:       granularity,
				})
			}
		}
	}

	i.logger.Debug().
		Str("resource", resource.Name).
		Int("samples", len(out)).
		Dur("granularity", granularity).
		Msg("utilization fetched")
	return out, nil
}

func (i *Inventory) resourceID(resource carbon.ComputeResource) (string, error) {
	sub := resource.Property(PropertySubscriptionID)
	if sub == "" {
		sub = i.subscriptionID
	}
	rg := resource.Property(PropertyResourceGroup)
	if rg == "" {
		rg = i.resourceGroup
	}
	if sub == "" || rg == "" || resource.Name == "" {
		return "", fmt.Errorf("%s: subscription, resource group and vm name are required to resolve %q", Name, resource.Name)
	}
	return fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Compute/virtualMachines/%s",
		url.PathEscape(sub), url.PathEscape(rg), url.PathEscape(resource.Name)), nil
}

func (i *Inventory) get(ctx context.Context, path string, query url.Values, out any) error {
	token, err := i.tokens.Token(ctx)
	if err != nil {
		return err
	}

	u := i.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := i.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", Name, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", Name, path, datasource.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %s returned status %d: %s", Name, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", Name, err)
	}
	return nil
}
