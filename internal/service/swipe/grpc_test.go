package swipe_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/npc-swipe/internal/auth"
	"github.com/oggyb/npc-swipe/internal/logger"
	"github.com/oggyb/npc-swipe/internal/server"
	"github.com/oggyb/npc-swipe/internal/service/swipe"
)

const operatorToken = "let-me-in"

// dialService serves the swipe API over an in-memory listener.
func dialService(t *testing.T, h *harness) *grpc.ClientConn {
	t.Helper()

	hash, err := auth.HashToken(operatorToken)
	require.NoError(t, err)
	h.appCtx.Operators, err = auth.NewVerifier(hash)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(logger.Discard(), swipe.NewRegistrar(h.appCtx))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func call(ctx context.Context, conn *grpc.ClientConn, method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	err = conn.Invoke(ctx, "/"+swipe.ServiceName+"/"+method, in, out)
	return out, err
}

func asOperator(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, swipe.OperatorTokenHeader, operatorToken)
}

func TestGRPCPlayerFlow(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, "lya", "grum")
	conn := dialService(t, h)

	out, err := call(ctx, conn, "StartSession", map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, "showing", out.Fields["outcome"].GetStringValue())
	assert.Equal(t, float64(2), out.Fields["total"].GetNumberValue())
	first := out.Fields["profile"].GetStructValue().Fields["id"].GetStringValue()
	assert.NotEmpty(t, first)

	out, err = call(ctx, conn, "Decide", map[string]any{"user_id": "u1", "kind": "approve"})
	require.NoError(t, err)
	decision := out.Fields["decision"].GetStructValue()
	assert.True(t, decision.Fields["recorded"].GetBoolValue())
	assert.Equal(t, first, decision.Fields["profile_id"].GetStringValue())

	_, err = call(ctx, conn, "Decide", map[string]any{"user_id": "u1", "kind": "maybe"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPCOperatorCallsNeedToken(t *testing.T) {
	ctx := context.Background()
	h := setupService(t, "lya")
	conn := dialService(t, h)

	for _, method := range []string{"ProfileSignal", "ForceMatch", "ListLikes", "CountApprovals", "ResetUser", "RemoveProfile"} {
		_, err := call(ctx, conn, method, map[string]any{"user_id": "u1", "profile_id": "lya"})
		assert.Equal(t, codes.PermissionDenied, status.Code(err), method)
	}

	_, err := call(ctx, conn, "StartSession", map[string]any{"user_id": "u1", "mode": "trial"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	out, err := call(asOperator(ctx), conn, "StartSession", map[string]any{"user_id": "u1", "mode": "trial"})
	require.NoError(t, err)
	assert.Equal(t, "trial", out.Fields["mode"].GetStringValue())
}

func TestGRPCOperatorCommands(t *testing.T) {
	ctx := asOperator(context.Background())
	h := setupService(t, "lya")
	conn := dialService(t, h)

	out, err := call(ctx, conn, "ProfileSignal", map[string]any{"profile_id": "lya", "user_id": "u1"})
	require.NoError(t, err)
	assert.False(t, out.Fields["matched"].GetBoolValue())

	out, err = call(ctx, conn, "ForceMatch", map[string]any{"profile_id": "lya", "user_id": "u1"})
	require.NoError(t, err)
	assert.True(t, out.Fields["matched"].GetBoolValue())

	_, err = call(ctx, conn, "ForceMatch", map[string]any{"profile_id": "nobody", "user_id": "u1"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = call(ctx, conn, "StartSession", map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	_, err = call(ctx, conn, "Decide", map[string]any{"user_id": "u1", "kind": "super"})
	require.NoError(t, err)

	out, err = call(ctx, conn, "ListLikes", map[string]any{"user_id": "u1", "limit": 10})
	require.NoError(t, err)
	likes := out.Fields["likes"].GetListValue().GetValues()
	require.Len(t, likes, 1)
	assert.Equal(t, "super", likes[0].GetStructValue().Fields["kind"].GetStringValue())

	_, err = call(ctx, conn, "ListLikes", map[string]any{"pagination_token": "garbage!"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	out, err = call(ctx, conn, "CountApprovals", map[string]any{"profile_id": "lya"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.Fields["count"].GetNumberValue())

	out, err = call(ctx, conn, "ResetUser", map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.Fields["decisions"].GetNumberValue())

	out, err = call(ctx, conn, "RemoveProfile", map[string]any{"profile_id": "lya"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.Fields["signals"].GetNumberValue())
}
