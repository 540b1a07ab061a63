// Package sci composes carbon intensity, hardware and utilization data into
// Software Carbon Intensity scores and serves the emissions queries built on
// the same data sources.
package sci

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/trace"
)

// ResolutionError reports a compute resource that the inventory knows but
// that cannot be mapped to a hardware profile.
type ResolutionError struct {
	Resource string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve resource %q: %v", e.Resource, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsResolution reports whether err (or anything it wraps) is a *ResolutionError.
func IsResolution(err error) bool {
	var r *ResolutionError
	return errors.As(err, &r)
}

// errUnknownProcessorOverride matches both the override and the catalog sentinel.
var errUnknownProcessorOverride = fmt.Errorf("%w (%w)", hardware.ErrInvalidProcessorOverride, hardware.ErrUnknownProcessor)

// Resolver maps compute resources to their location and hardware profile.
type Resolver struct {
	inventory datasource.ComputeInventory
	catalog   *hardware.Catalog
	logger    zerolog.Logger
}

// NewResolver returns a Resolver backed by inventory and catalog.
func NewResolver(inventory datasource.ComputeInventory, catalog *hardware.Catalog, logger zerolog.Logger) *Resolver {
	return &Resolver{
		inventory: inventory,
		catalog:   catalog,
		logger:    logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve returns a copy of resource with Location and Hardware populated.
//
// A processor override naming a processor absent from the catalog is
// rejected before the inventory is consulted. An override that exists but is
// not valid for the resource's VM size is rejected after lookup. Both are
// *carbon.ValidationError values matching hardware.ErrInvalidProcessorOverride.
func (r *Resolver) Resolve(ctx context.Context, resource carbon.ComputeResource) (carbon.ComputeResource, error) {
	override := resource.ProcessorOverride()
	if override != "" {
		if _, ok := r.catalog.Processor(override); !ok {
			return carbon.ComputeResource{}, &carbon.ValidationError{
				Kind:   errUnknownProcessorOverride,
				Detail: fmt.Sprintf("%q requested for resource %q", override, resource.Name),
			}
		}
	}

	info, err := r.inventory.LookupResource(ctx, resource)
	if err != nil {
		return carbon.ComputeResource{}, fmt.Errorf("lookup resource %q: %w", resource.Name, err)
	}

	profile, err := r.catalog.Profile(info.VMSize, override)
	switch {
	case errors.Is(err, hardware.ErrInvalidProcessorOverride):
		return carbon.ComputeResource{}, &carbon.ValidationError{
			Kind:   hardware.ErrInvalidProcessorOverride,
			Detail: fmt.Sprintf("%q is not a valid processor for %s (resource %q)", override, info.VMSize, resource.Name),
		}
	case err != nil:
		return carbon.ComputeResource{}, &ResolutionError{Resource: resource.Name, Err: err}
	}

	resolved := resource
	resolved.Location = info.Location
	if resolved.Location.RegionName == "" {
		resolved.Location = resource.Location
	}
	resolved.Hardware = &profile

	r.logger.Debug().
		Str(trace.FieldTraceID, trace.ID(ctx)).
		Str("resource", resource.Name).
		Str("location", resolved.Location.RegionName).
		Str("vm_size", profile.VMSize).
		Str("processor", profile.Processor.Name).
		Msg("resource resolved")
	return resolved, nil
}

// ResolveAll resolves resources concurrently. The result preserves input
// order; the first failure cancels the remaining lookups.
func (r *Resolver) ResolveAll(ctx context.Context, resources []carbon.ComputeResource) ([]carbon.ComputeResource, error) {
	out := make([]carbon.ComputeResource, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	for i, res := range resources {
		g.Go(func() error {
			resolved, err := r.Resolve(gctx, res)
			if err != nil {
				return err
			}
			out[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
