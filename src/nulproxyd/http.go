package nulproxyd

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.brendoncarroll.net/stdctx/logctx"
	"golang.org/x/exp/slices"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.nulproxy.org/nulproxy/src/nulproxy"
)

// SessionStatus is one row of the status report.
type SessionStatus struct {
	LocalAddr  string `json:"local_addr"`
	RemoteAddr string `json:"remote_addr"`
	LocalRx    uint64 `json:"local_rx"`
	LocalTx    uint64 `json:"local_tx"`
	RemoteRx   uint64 `json:"remote_rx"`
	RemoteTx   uint64 `json:"remote_tx"`
}

type Status struct {
	ListenAddrs []string        `json:"listen_addrs"`
	Sessions    []SessionStatus `json:"sessions"`
}

// runHTTPServer starts a listener at endpoint and serves the admin API.
func (d *Daemon) runHTTPServer(ctx context.Context, endpoint string, proxy *nulproxy.Proxy, pgath prometheus.Gatherer) error {
	l, err := net.Listen("tcp", endpoint)
	if err != nil {
		return err
	}
	defer l.Close()

	mux := newAdminMux(proxy, pgath)
	h2Srv := &http2.Server{}
	hSrv := http.Server{
		Handler:     h2c.NewHandler(mux, h2Srv),
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		logctx.Infof(ctx, "admin API listening on %v", l.Addr())
		if err := hSrv.Serve(l); err != nil && err != http.ErrServerClosed {
			logctx.Errorf(ctx, "error serving http: %v", err)
		}
	}()
	<-ctx.Done()
	if err := hSrv.Shutdown(context.Background()); err != nil {
		return err
	}
	return ctx.Err()
}

func newAdminMux(proxy *nulproxy.Proxy, pgath prometheus.Gatherer) http.Handler {
	mux := chi.NewMux()
	// health check
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("nulproxy\n"))
	})
	// prometheus metrics
	mux.Handle("/metrics", promhttp.HandlerFor(pgath, promhttp.HandlerOpts{}))
	// live sessions
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(getStatus(proxy))
	})
	return mux
}

func getStatus(proxy *nulproxy.Proxy) (ret Status) {
	for _, a := range proxy.ListenAddrs() {
		ret.ListenAddrs = append(ret.ListenAddrs, a.String())
	}
	for _, s := range proxy.Sessions() {
		st := s.Stats()
		ret.Sessions = append(ret.Sessions, SessionStatus{
			LocalAddr:  s.LocalAddr().String(),
			RemoteAddr: s.RemoteAddr().String(),
			LocalRx:    st.LocalRx,
			LocalTx:    st.LocalTx,
			RemoteRx:   st.RemoteRx,
			RemoteTx:   st.RemoteTx,
		})
	}
	slices.SortFunc(ret.Sessions, func(a, b SessionStatus) bool {
		return a.LocalAddr < b.LocalAddr
	})
	return ret
}
