package serve

import (
	"context"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/fx"

	"github.com/pyscope/pyscope/internal/server"
)

// rpcNamespace prefixes the method names on the wire: run_launch,
// run_cancel, run_status, run_list, run_wait, run_release, plus the
// "events" subscription via run_subscribe.
const rpcNamespace = "run"

// NewRPCServer builds the JSON-RPC server with the run service
// registered under the "run" namespace.
func NewRPCServer(service *RunService) (*rpc.Server, error) {
	srv := rpc.NewServer()

	if err := srv.RegisterName(rpcNamespace, service); err != nil {
		return nil, err
	}

	return srv, nil
}

// NewRPCHandler adapts the rpc server into a single http handler:
// websocket upgrades go to the subscription-capable codec, plain
// posts to the http codec.
func NewRPCHandler(srv *rpc.Server) http.Handler {
	return &rpcHandler{
		rpc: srv,
		ws:  srv.WebsocketHandler([]string{"*"}),
	}
}

// NewRPCRoute mounts the JSON-RPC endpoint on /rpc and stops it with
// the application, ending open subscriptions.
func NewRPCRoute(service *RunService, lc fx.Lifecycle) (server.HttpHandlerResult, error) {
	srv, err := NewRPCServer(service)
	if err != nil {
		return server.HttpHandlerResult{}, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			srv.Stop()
			return nil
		},
	})

	return server.AsHttpHandler("/rpc", NewRPCHandler(srv)), nil
}

type rpcHandler struct {
	rpc *rpc.Server
	ws  http.Handler
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isWebsocket(r) {
		h.ws.ServeHTTP(w, r)
		return
	}

	h.rpc.ServeHTTP(w, r)
}

// isWebsocket reports whether the request asks for a websocket
// upgrade.
func isWebsocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
