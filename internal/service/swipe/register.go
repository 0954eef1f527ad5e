package swipe

import (
	"google.golang.org/grpc"

	"github.com/oggyb/npc-swipe/internal/app"
)

// Registrar ties the swipe service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the swipe service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the swipe service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, NewGRPCServer(NewService(r.appCtx)))
}
