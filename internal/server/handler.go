package server

import (
	"net/http"

	"go.uber.org/fx"
)

// HttpHandler is one mux route contributed to the control server.
type HttpHandler struct {
	Name    string
	Handler http.Handler
}

type HttpHandlerResult struct {
	fx.Out

	Handler *HttpHandler `group:"handlers"`
}

// AsHttpHandler wraps a handler for contribution to the control
// server's route group. Name is the mux pattern to mount it on.
func AsHttpHandler(
	name string,
	handler http.Handler,
) HttpHandlerResult {
	return HttpHandlerResult{
		Handler: &HttpHandler{
			Name:    name,
			Handler: handler,
		},
	}
}
