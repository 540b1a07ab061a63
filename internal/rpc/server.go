// Package rpc exposes the SCI engine over gRPC. Messages are plain Go
// structs carried by a JSON codec registered under the "json"
// content-subtype.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rshade/carbon-aware-sci/internal/carbon"
	"github.com/rshade/carbon-aware-sci/internal/datasource"
	"github.com/rshade/carbon-aware-sci/internal/hardware"
	"github.com/rshade/carbon-aware-sci/internal/sci"
	"github.com/rshade/carbon-aware-sci/internal/trace"
)

// metadataRequestID is the lowercase metadata key carrying the trace id.
var metadataRequestID = strings.ToLower(trace.HeaderRequestID)

// Server implements SciServiceServer on top of the engine.
type Server struct {
	aggregator *sci.Aggregator
	emissions  *sci.EmissionsService
	logger     zerolog.Logger // logger is immutable (copy-on-write)
}

var _ SciServiceServer = (*Server)(nil)

// NewServer returns a Server.
func NewServer(aggregator *sci.Aggregator, emissions *sci.EmissionsService, logger zerolog.Logger) *Server {
	return &Server{
		aggregator: aggregator,
		emissions:  emissions,
		logger:     logger.With().Str("component", "grpc").Logger(),
	}
}

// NewGRPCServer returns a *grpc.Server with the SCI service and the standard
// health service registered.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(srv.traceInterceptor)}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterSciServiceServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

// traceInterceptor reads the trace id from x-request-id metadata, generating
// one when absent, and echoes it in the response header.
func (s *Server) traceInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	var id string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(metadataRequestID); len(values) > 0 {
			id = values[0]
		}
	}
	if id == "" {
		id = trace.NewID()
	}
	ctx = trace.WithID(ctx, id)
	if err := grpc.SetHeader(ctx, metadata.Pairs(metadataRequestID, id)); err != nil {
		s.logger.Debug().Err(err).Msg("failed to set response header")
	}

	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info().
		Str(trace.FieldTraceID, id).
		Str("method", info.FullMethod).
		Str("grpc_code", status.Code(err).String()).
		Int64(trace.FieldDurationMs, time.Since(start).Milliseconds()).
		Msg("rpc handled")
	return resp, err
}

// CalculateSciScore implements SciServiceServer.
func (s *Server) CalculateSciScore(ctx context.Context, req *SciScoreRequest) (*SciScoreResponse, error) {
	resources := make([]carbon.ComputeResource, len(req.Resources))
	for i, r := range req.Resources {
		props := make(map[string]string, len(r.Properties)+1)
		for k, v := range r.Properties {
			props[k] = v
		}
		if r.Processor != "" {
			props[carbon.PropertyProcessor] = r.Processor
		}
		resources[i] = carbon.ComputeResource{Name: r.Name, Properties: props}
		if r.Location != nil {
			resources[i].Location = carbon.Location{RegionName: r.Location.RegionName, CloudProvider: r.Location.CloudProvider}
		}
	}

	score, err := s.aggregator.CalculateSciScore(ctx, resources, req.TimeInterval, sci.WithFunctionalUnit(req.FunctionalUnit))
	if err != nil {
		return nil, s.toStatus(ctx, "CalculateSciScore", err)
	}
	return &SciScoreResponse{
		SciScore:                     score.SciScoreValue,
		EnergyValue:                  score.EnergyValue,
		MarginalCarbonIntensityValue: score.MarginalCarbonIntensityValue,
		EmbodiedEmissionsValue:       score.EmbodiedEmissionsValue,
		FunctionalUnitValue:          score.FunctionalUnitValue,
	}, nil
}

// GetCurrentForecast implements SciServiceServer.
func (s *Server) GetCurrentForecast(ctx context.Context, req *ForecastRequest) (*ForecastResponse, error) {
	const op = "GetCurrentForecast"
	window, err := carbon.WindowSizeFromMinutes(req.WindowSizeMinutes)
	if err != nil {
		return nil, s.toStatus(ctx, op, err)
	}
	q := sci.ForecastQuery{WindowSize: window}
	if req.Location != "" {
		q.Locations = []carbon.Location{{RegionName: req.Location}}
	}
	if q.DataStartAt, err = optionalTime(req.DataStartAt); err != nil {
		return nil, s.toStatus(ctx, op, err)
	}
	if q.DataEndAt, err = optionalTime(req.DataEndAt); err != nil {
		return nil, s.toStatus(ctx, op, err)
	}

	forecasts, err := s.emissions.GetCurrentForecasts(ctx, q)
	if err != nil {
		return nil, s.toStatus(ctx, op, err)
	}
	f := forecasts[0]

	resp := &ForecastResponse{
		Location:          f.Location,
		GeneratedAt:       formatTime(f.GeneratedAt),
		RequestedAt:       formatTime(f.RequestedAt),
		DataStartAt:       formatTime(f.DataStartAt),
		DataEndAt:         formatTime(f.DataEndAt),
		WindowSizeMinutes: int64(f.WindowSize / time.Minute),
		ForecastData:      make([]EmissionsData, len(f.ForecastData)),
	}
	for i, d := range f.ForecastData {
		resp.ForecastData[i] = toEmissionsData(d)
	}
	if f.OptimalDataPoint != nil {
		best := toEmissionsData(*f.OptimalDataPoint)
		resp.OptimalDataPoint = &best
	}
	return resp, nil
}

// GetAverageCarbonIntensity implements SciServiceServer.
func (s *Server) GetAverageCarbonIntensity(ctx context.Context, req *AverageCarbonIntensityRequest) (*AverageCarbonIntensityResponse, error) {
	avg, err := s.aggregator.CalculateAverageCarbonIntensity(ctx, carbon.Location{RegionName: req.Location}, req.TimeInterval)
	if err != nil {
		return nil, s.toStatus(ctx, "GetAverageCarbonIntensity", err)
	}
	return &AverageCarbonIntensityResponse{Location: req.Location, CarbonIntensity: avg}, nil
}

func optionalTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return carbon.ParseTimestamp(raw)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toEmissionsData(d carbon.EmissionsData) EmissionsData {
	return EmissionsData{
		Location:  d.Location,
		Timestamp: formatTime(d.Time),
		Duration:  int64(d.Duration / time.Minute),
		Value:     d.Rating,
	}
}

// toStatus maps an engine error to a gRPC status. Validation errors carry a
// BadRequest detail naming the offending field.
func (s *Server) toStatus(ctx context.Context, operation string, err error) error {
	code := codeFor(err)

	event := s.logger.Warn()
	if code == codes.Internal {
		event = s.logger.Error()
	}
	event.
		Str(trace.FieldTraceID, trace.ID(ctx)).
		Str(trace.FieldOperation, operation).
		Str("grpc_code", code.String()).
		Err(err).
		Msg("rpc failed")

	if code == codes.Internal {
		return status.Error(code, fmt.Sprintf("%s failed (trace_id %s)", operation, trace.ID(ctx)))
	}

	st := status.New(code, err.Error())
	if code == codes.InvalidArgument {
		detailed, detailErr := st.WithDetails(&errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{
				{Field: fieldFor(err), Description: err.Error()},
			},
		})
		if detailErr == nil {
			st = detailed
		}
	}
	return st.Err()
}

func codeFor(err error) codes.Code {
	switch {
	case carbon.IsValidation(err):
		return codes.InvalidArgument
	case errors.Is(err, datasource.ErrNotFound):
		return codes.NotFound
	case sci.IsResolution(err):
		return codes.FailedPrecondition
	case errors.Is(err, datasource.ErrUnsupported):
		return codes.Unimplemented
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// fieldFor names the request field a validation error refers to.
func fieldFor(err error) string {
	switch {
	case errors.Is(err, carbon.ErrMalformedInterval),
		errors.Is(err, carbon.ErrUnparsableTimestamp),
		errors.Is(err, carbon.ErrInvertedInterval):
		return "time_interval"
	case errors.Is(err, carbon.ErrNoResources):
		return "resources"
	case errors.Is(err, hardware.ErrInvalidProcessorOverride):
		return "resources.processor"
	case errors.Is(err, carbon.ErrInvalidFunctionalUnit):
		return "functional_unit"
	case errors.Is(err, carbon.ErrEmptyLocations):
		return "location"
	case errors.Is(err, carbon.ErrInvalidWindowSize):
		return "window_size_minutes"
	default:
		return ""
	}
}
