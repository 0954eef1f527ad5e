package swipe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/npc-swipe/internal/db"
	svcErr "github.com/oggyb/npc-swipe/internal/errors"
	"github.com/oggyb/npc-swipe/internal/session"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "npcswipe.v1.SwipeService"

// OperatorTokenHeader carries the operator token in call metadata.
const OperatorTokenHeader = "x-operator-token"

// API is the gRPC surface of the swipe service. Requests and responses are
// google.protobuf.Struct messages so any client can call it without stubs.
type API interface {
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Current(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Decide(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProfileSignal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ForceMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListLikes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CountApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveProfile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes API to a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*API)(nil),
	Methods: []grpc.MethodDesc{
		unary("StartSession", API.StartSession),
		unary("Current", API.Current),
		unary("Decide", API.Decide),
		unary("ProfileSignal", API.ProfileSignal),
		unary("ForceMatch", API.ForceMatch),
		unary("ListLikes", API.ListLikes),
		unary("CountApprovals", API.CountApprovals),
		unary("ResetUser", API.ResetUser),
		unary("RemoveProfile", API.RemoveProfile),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "npcswipe/v1/swipe.proto",
}

func unary(name string, call func(API, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(API), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(API), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// GRPCServer adapts Service to API. Operator-only calls check the
// x-operator-token metadata against the configured hash.
type GRPCServer struct {
	svc *Service
}

// NewGRPCServer wraps svc.
func NewGRPCServer(svc *Service) *GRPCServer {
	return &GRPCServer{svc: svc}
}

var _ API = (*GRPCServer)(nil)

// StartSession handles {user_id, mode}. Trial sessions are operator-only.
func (g *GRPCServer) StartSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	mode := session.Mode(str(req, "mode"))
	if mode == session.ModeTrial {
		if err := g.requireOperator(ctx); err != nil {
			return nil, err
		}
	}
	g.svc.log.Debug("StartSession called", "user_id", str(req, "user_id"), "mode", mode)

	res, err := g.svc.StartSession(ctx, str(req, "user_id"), mode)
	return reply(res, err)
}

// Current handles {user_id}.
func (g *GRPCServer) Current(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	res, err := g.svc.Current(ctx, str(req, "user_id"))
	return reply(res, err)
}

// Decide handles {user_id, kind}.
func (g *GRPCServer) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	g.svc.log.Debug("Decide called", "user_id", str(req, "user_id"), "kind", str(req, "kind"))
	res, err := g.svc.Decide(ctx, str(req, "user_id"), db.DecisionKind(str(req, "kind")))
	return reply(res, err)
}

// ProfileSignal handles {profile_id, user_id, kind}. Operator-only.
func (g *GRPCServer) ProfileSignal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := g.requireOperator(ctx); err != nil {
		return nil, err
	}
	res, err := g.svc.ProfileSignal(ctx, str(req, "profile_id"), str(req, "user_id"), db.DecisionKind(str(req, "kind")))
	return reply(res, err)
}

// ForceMatch handles {user_id, profile_id}. Operator-only.
func (g *GRPCServer) ForceMatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := g.requireOperator(ctx); err != nil {
		return nil, err
	}
	res, err := g.svc.ForceMatch(ctx, str(req, "user_id"), str(req, "profile_id"))
	return reply(res, err)
}

type likesReply struct {
	Likes               []likeItem `json:"likes"`
	NextPaginationToken *string    `json:"next_pagination_token,omitempty"`
}

type likeItem struct {
	UserID        string          `json:"user_id"`
	ProfileID     string          `json:"profile_id"`
	Kind          db.DecisionKind `json:"kind"`
	UnixTimestamp int64           `json:"unix_timestamp"`
}

// ListLikes handles {user_id?, pagination_token?, limit?}. Operator-only.
func (g *GRPCServer) ListLikes(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := g.requireOperator(ctx); err != nil {
		return nil, err
	}
	var token *string
	if t := str(req, "pagination_token"); t != "" {
		token = &t
	}
	limit, err := intField(req, "limit")
	if err != nil {
		return nil, svcErr.Map(err)
	}

	decisions, next, err := g.svc.ListLikes(ctx, str(req, "user_id"), token, limit)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	out := likesReply{Likes: make([]likeItem, 0, len(decisions)), NextPaginationToken: next}
	for _, d := range decisions {
		out.Likes = append(out.Likes, likeItem{
			UserID:        d.UserID,
			ProfileID:     d.ProfileID,
			Kind:          d.Kind,
			UnixTimestamp: d.CreatedAt.UnixMilli(),
		})
	}
	return reply(out, nil)
}

// CountApprovals handles {profile_id}. Operator-only.
func (g *GRPCServer) CountApprovals(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := g.requireOperator(ctx); err != nil {
		return nil, err
	}
	n, err := g.svc.CountApprovals(ctx, str(req, "profile_id"))
	return reply(map[string]int64{"count": n}, err)
}

// ResetUser handles {user_id}. Operator-only.
func (g *GRPCServer) ResetUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := g.requireOperator(ctx); err != nil {
		return nil, err
	}
	res, err := g.svc.ResetUser(ctx, str(req, "user_id"))
	return reply(res, err)
}

// RemoveProfile handles {profile_id}. Operator-only.
func (g *GRPCServer) RemoveProfile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := g.requireOperator(ctx); err != nil {
		return nil, err
	}
	res, err := g.svc.RemoveProfile(ctx, str(req, "profile_id"))
	return reply(res, err)
}

func (g *GRPCServer) requireOperator(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	var token string
	if vals := md.Get(OperatorTokenHeader); len(vals) > 0 {
		token = vals[0]
	}
	if !g.svc.appCtx.Operators.IsPrivileged(token) {
		return svcErr.Map(svcErr.ErrForbidden)
	}
	return nil
}

// reply maps err, or encodes v as a Struct through its JSON form.
func reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, svcErr.Map(err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, svcErr.Map(fmt.Errorf("failed to encode reply: %w", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, svcErr.Map(fmt.Errorf("failed to encode reply: %w", err))
	}
	return out, nil
}

func str(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func intField(req *structpb.Struct, key string) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, nil
	}
	f := v.GetNumberValue()
	if f < 0 || f > math.MaxInt32 || f != math.Trunc(f) {
		return 0, svcErr.Invalid(key, "must be a non-negative integer")
	}
	return int(f), nil
}
