package metrics

import (
	"context"
	"net/http"
	"net/http/pprof"

	"github.com/pokt-network/poktroll/pkg/polylog"
)

const pprofPathPrefix = "/debug/pprof/"

// ServePprof serves the runtime profiles on addr until ctx is done.
// See https://pkg.go.dev/net/http/pprof for the available profiles.
func ServePprof(ctx context.Context, logger polylog.Logger, addr string) {
	Serve(ctx, logger, "pprof", addr, pprofHandler())
}

func pprofHandler() http.Handler {
	mux := http.NewServeMux()
	// pprof.Index also serves the named profiles, e.g. /debug/pprof/heap.
	mux.HandleFunc(pprofPathPrefix, pprof.Index)
	mux.HandleFunc(pprofPathPrefix+"cmdline", pprof.Cmdline)
	mux.HandleFunc(pprofPathPrefix+"profile", pprof.Profile)
	mux.HandleFunc(pprofPathPrefix+"symbol", pprof.Symbol)
	mux.HandleFunc(pprofPathPrefix+"trace", pprof.Trace)
	return mux
}
