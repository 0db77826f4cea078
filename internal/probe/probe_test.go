package probe

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeDB struct{ down atomic.Bool }

func (f *fakeDB) Ping(context.Context) error {
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func start(t *testing.T, db Pinger) (*Server, grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := New(db, zap.NewNop(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx, lis)
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return s, dialer
}

func TestCheckServing(t *testing.T) {
	db := &fakeDB{}
	s, dialer := start(t, db)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, s.check(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := Check(ctx, "passthrough:///bufnet", Service, dialer)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.GetStatus())
}

func TestCheckFollowsDatabase(t *testing.T) {
	db := &fakeDB{}
	s, dialer := start(t, db)

	db.down.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, s.check(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := Check(ctx, "passthrough:///bufnet", "", dialer)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, res.GetStatus())

	db.down.Store(false)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, s.check(context.Background()))
}

func TestFormat(t *testing.T) {
	out, err := Format(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]string{"status": "SERVING"}, got)
}
