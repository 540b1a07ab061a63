package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "carbonaware.v1.SciService"

const (
	methodCalculateSciScore         = "/" + ServiceName + "/CalculateSciScore"
	methodGetCurrentForecast        = "/" + ServiceName + "/GetCurrentForecast"
	methodGetAverageCarbonIntensity = "/" + ServiceName + "/GetAverageCarbonIntensity"
)

// SciServiceServer is the server API of the SCI service.
type SciServiceServer interface {
	CalculateSciScore(context.Context, *SciScoreRequest) (*SciScoreResponse, error)
	GetCurrentForecast(context.Context, *ForecastRequest) (*ForecastResponse, error)
	GetAverageCarbonIntensity(context.Context, *AverageCarbonIntensityRequest) (*AverageCarbonIntensityResponse, error)
}

// RegisterSciServiceServer registers srv on s.
func RegisterSciServiceServer(s grpc.ServiceRegistrar, srv SciServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SciServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CalculateSciScore", Handler: calculateSciScoreHandler},
		{MethodName: "GetCurrentForecast", Handler: getCurrentForecastHandler},
		{MethodName: "GetAverageCarbonIntensity", Handler: getAverageCarbonIntensityHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carbonaware/v1/sci.json",
}

func calculateSciScoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SciScoreRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SciServiceServer).CalculateSciScore(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodCalculateSciScore}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SciServiceServer).CalculateSciScore(ctx, req.(*SciScoreRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getCurrentForecastHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ForecastRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SciServiceServer).GetCurrentForecast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetCurrentForecast}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SciServiceServer).GetCurrentForecast(ctx, req.(*ForecastRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getAverageCarbonIntensityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AverageCarbonIntensityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SciServiceServer).GetAverageCarbonIntensity(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetAverageCarbonIntensity}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SciServiceServer).GetAverageCarbonIntensity(ctx, req.(*AverageCarbonIntensityRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SciServiceClient is the client API of the SCI service. Calls use the JSON
// codec.
type SciServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSciServiceClient returns a client over cc.
func NewSciServiceClient(cc grpc.ClientConnInterface) *SciServiceClient {
	return &SciServiceClient{cc: cc}
}

func (c *SciServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

// CalculateSciScore calls the method of the same name.
func (c *SciServiceClient) CalculateSciScore(ctx context.Context, in *SciScoreRequest, opts ...grpc.CallOption) (*SciScoreResponse, error) {
	out := new(SciScoreResponse)
	if err := c.invoke(ctx, methodCalculateSciScore, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCurrentForecast calls the method of the same name.
func (c *SciServiceClient) GetCurrentForecast(ctx context.Context, in *ForecastRequest, opts ...grpc.CallOption) (*ForecastResponse, error) {
	out := new(ForecastResponse)
	if err := c.invoke(ctx, methodGetCurrentForecast, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAverageCarbonIntensity calls the method of the same name.
func (c *SciServiceClient) GetAverageCarbonIntensity(ctx context.Context, in *AverageCarbonIntensityRequest, opts ...grpc.CallOption) (*AverageCarbonIntensityResponse, error) {
	out := new(AverageCarbonIntensityResponse)
	if err := c.invoke(ctx, methodGetAverageCarbonIntensity, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}
