package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/tally/pkg/errorbank"
)

func TestToStatus(t *testing.T) {
	assert.NoError(t, toStatus(nil))

	err := toStatus(errorbank.Forbidden("role is not allowed to update devices"))
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.PermissionDenied, st.Code())
	assert.Equal(t, "role is not allowed to update devices", st.Message())

	err = toStatus(errorbank.Unavailable("database unavailable"))
	assert.Equal(t, codes.Unavailable, status.Code(err))

	plain := errors.New("boom")
	assert.Equal(t, plain, toStatus(plain))
}

func TestHealthRegistered(t *testing.T) {
	hs := NewHealth()
	server := NewServer(zap.NewNop(), hs)
	defer server.Stop()

	info := server.GetServiceInfo()
	_, ok := info[healthpb.Health_ServiceDesc.ServiceName]
	assert.True(t, ok)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
