// Package nulproxyd assembles the proxy core into a runnable daemon with a
// yaml config, prometheus metrics, and an HTTP admin API.
package nulproxyd

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.brendoncarroll.net/stdctx/logctx"

	"go.nulproxy.org/nulproxy/src/internal/netutil"
	"go.nulproxy.org/nulproxy/src/nulproxy"
)

type Params struct {
	// ListenAddr is where the proxy accepts inbound connections.
	ListenAddr string
	// UpstreamAddr is dialed once per inbound connection.
	UpstreamAddr string
	// TickPeriod is the event loop tick cadence. Zero means spin.
	TickPeriod time.Duration
	// APIAddr is where the admin HTTP API listens. Empty disables it.
	APIAddr string
	// Observer, if set, replaces the transparent relay. The daemon's metrics
	// observer wraps whatever is configured here.
	Observer nulproxy.Observer
}

type Daemon struct {
	params Params

	setupDone chan struct{}
	proxy     *nulproxy.Proxy
}

func New(p Params) *Daemon {
	if p.Observer == nil {
		p.Observer = nulproxy.Relay{}
	}
	return &Daemon{
		params:    p,
		setupDone: make(chan struct{}),
	}
}

// Run runs the proxy and the admin API until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	proxy := nulproxy.New(nulproxy.Params{
		Observer:   m.observe(d.params.Observer),
		TickPeriod: d.params.TickPeriod,
		OnTick:     m.tick,
		Background: ctx,
	})
	defer proxy.Dispose()
	if d.params.TickPeriod == 0 {
		proxy.Loop().SetTickPeriod(0)
	}
	bound, err := proxy.Bind(d.params.ListenAddr, d.params.UpstreamAddr)
	if err != nil {
		return err
	}
	d.proxy = proxy
	close(d.setupDone)
	logctx.Infof(ctx, "proxying %v -> %v", bound, d.params.UpstreamAddr)

	sg := netutil.ServiceGroup{Background: ctx}
	if d.params.APIAddr != "" {
		sg.Go(func(ctx context.Context) error {
			return d.runHTTPServer(ctx, d.params.APIAddr, proxy, reg)
		})
	}
	defer sg.Stop()
	<-ctx.Done()
	return ctx.Err()
}

// DoWithProxy runs cb with the daemon's proxy, waiting for setup to finish.
func (d *Daemon) DoWithProxy(ctx context.Context, cb func(*nulproxy.Proxy) error) error {
	select {
	case <-d.setupDone:
		return cb(d.proxy)
	case <-ctx.Done():
		return ctx.Err()
	}
}
