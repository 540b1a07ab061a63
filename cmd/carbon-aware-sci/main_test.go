package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rshade/carbon-aware-sci/internal/rpc"
)

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"--config", "c.yaml", "--http-addr", ":1234", "--grpc-addr", "off"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "c.yaml", opts.ConfigPath)
	assert.Equal(t, ":1234", opts.HTTPAddr)
	assert.Equal(t, grpcDisabled, opts.GRPCAddr)

	_, err = parseOptions([]string{"--unknown"}, io.Discard)
	assert.Error(t, err)
}

func TestRun_ServesAndShutsDown(t *testing.T) {
	dataset, err := filepath.Abs("../../internal/datasource/jsonfile/testdata/dataset.json")
	require.NoError(t, err)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("jsonFile:\n  path: "+dataset+"\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan [2]net.Addr, 1)
	done := make(chan error, 1)
	var logs bytes.Buffer
	go func() {
		done <- run(ctx, &options{ConfigPath: cfgPath, HTTPAddr: "127.0.0.1:0", GRPCAddr: "127.0.0.1:0"}, &logs, ready)
	}()

	var addrs [2]net.Addr
	select {
	case addrs = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	require.NotNil(t, addrs[1])

	resp, err := http.Get("http://" + addrs[0].String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStopGRPC_ReportsNotServingBeforeStopping(t *testing.T) {
	gs, hs := rpc.NewGRPCServer(rpc.NewServer(nil, nil, zerolog.Nop()))
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	stream, err := healthpb.NewHealthClient(conn).Watch(context.Background(),
		&healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, first.GetStatus())

	// The open watch stream keeps GracefulStop waiting until the deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		stopGRPC(stopCtx, gs, hs)
		close(stopped)
	}()

	next, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, next.GetStatus())

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stopGRPC did not return after its deadline")
	}

	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CARBONAWARE_CARBON_INTENSITY_SOURCE", "nope")
	err := run(context.Background(), &options{}, io.Discard, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown carbon intensity source")
}
