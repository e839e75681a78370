/*
 * SPDX-FileCopyrightText: © Hypermode Inc. <hello@hypermode.com>
 * SPDX-License-Identifier: Apache-2.0
 */

// Package serve runs the persisted operations gateway in front of a GraphQL server.
//
// HTTP requests to /graphql and websocket connections upgraded on /graphql have
// their operation hash replaced by the persisted document before they reach the
// upstream server.  /metrics exposes the resolution counters and /health reports
// whether the operations store is ready.
package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/ristretto/v2/z"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hypermodeinc/persisted-operations/graphql/persisted"
	"github.com/hypermodeinc/persisted-operations/graphql/subscription"
	"github.com/hypermodeinc/persisted-operations/graphql/web"
	"github.com/hypermodeinc/persisted-operations/x"
)

// Serve is the sub-command invoked when running "persisted serve".
var Serve x.SubCommand

const (
	persistedDefaults = `dir=; manifest=; allow-unpersisted=false; refresh-interval=5s; ` +
		`hash-field=;`
	shutdownTimeout = 5 * time.Second
	defaultPort     = 8080
)

func init() {
	Serve.Cmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the persisted operations gateway",
		Run: func(cmd *cobra.Command, args []string) {
			defer x.StartProfile(Serve.Conf).Stop()
			if err := run(); err != nil {
				if glog.V(2) {
					fmt.Printf("Error : %+v\n", err)
				} else {
					fmt.Printf("Error : %s\n", err)
				}
				os.Exit(1)
			}
		},
	}
	Serve.EnvPrefix = "PERSISTED_SERVE"

	flags := Serve.Cmd.Flags()
	flags.StringP("upstream", "u", "",
		"URL of the GraphQL HTTP endpoint that executes the operations, e.g. "+
			"http://localhost:8080/graphql")
	flags.String("ws_upstream", "",
		"URL of the GraphQL websocket endpoint. Defaults to --upstream with a ws scheme.")
	flags.IntP("port", "p", defaultPort, "Port on which to run the HTTP service")
	flags.String("persisted", persistedDefaults, z.NewSuperFlagHelp(persistedDefaults).
		Head("Persisted operation options").
		Flag("dir",
			"Directory holding one <hash>.graphql file per operation. New files are picked "+
				"up while running.").
		Flag("manifest",
			"Path to a JSON or YAML manifest mapping hashes to documents. Cannot be used "+
				"together with dir.").
		Flag("allow-unpersisted",
			"Let requests without a persisted hash through with the query they carry.").
		Flag("refresh-interval",
			"How long to wait between two listings of dir.").
		Flag("hash-field",
			`Where requests carry the hash: "apollo" (extensions.persistedQuery.sha256Hash), `+
				`"relay" (documentId), "header:<name>" or "any".`).
		String())
	flags.String("allow_unpersisted_expr", "",
		"Expression deciding per request whether unpersisted queries are let through, "+
			`e.g. header("X-Internal") == "true". Takes precedence over allow-unpersisted.`)

	x.RegisterTraceFlags(flags)
}

// config is the parsed command line of serve.
type config struct {
	addr            string
	upstream        *url.URL
	wsUpstream      *url.URL
	refreshInterval time.Duration
	opts            *persisted.Options
}

func parseConfig(sc x.SubCommand) (*config, error) {
	conf := sc.Conf
	upstream, err := parseUpstream("upstream", sc.GetStringP("upstream", "u", ""))
	if err != nil {
		return nil, err
	}
	var wsUpstream *url.URL
	if raw := conf.GetString("ws_upstream"); raw != "" {
		if wsUpstream, err = parseUpstream("ws_upstream", raw); err != nil {
			return nil, err
		}
	} else {
		wsUpstream = websocketURL(upstream)
	}

	sf := z.NewSuperFlag(conf.GetString("persisted")).MergeAndCheckDefault(persistedDefaults)
	opts, err := buildOptions(sf, conf.GetString("allow_unpersisted_expr"))
	if err != nil {
		return nil, err
	}

	bind := "localhost"
	if conf.GetBool("bindall") {
		bind = "0.0.0.0"
	}
	return &config{
		addr:            fmt.Sprintf("%s:%d", bind, sc.GetIntP("port", "p", defaultPort)),
		upstream:        upstream,
		wsUpstream:      wsUpstream,
		refreshInterval: sf.GetDuration("refresh-interval"),
		opts:            opts,
	}, nil
}

func parseUpstream(flag, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.Errorf("--%s is required", flag)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "while parsing --%s", flag)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("--%s must be an absolute URL, got %q", flag, raw)
	}
	return u, nil
}

func websocketURL(u *url.URL) *url.URL {
	ws := *u
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	case "http":
		ws.Scheme = "ws"
	}
	return &ws
}

// buildOptions turns the --persisted superflag and the bypass expression into
// persisted.Options.
func buildOptions(sf *z.SuperFlag, expr string) (*persisted.Options, error) {
	dir := sf.GetPath("dir")
	manifest := sf.GetPath("manifest")
	if dir != "" && manifest != "" {
		return nil, errors.Wrapf(persisted.ErrConfigurationConflict,
			"persisted dir %q and manifest %q are both set", dir, manifest)
	}

	opts := &persisted.Options{Directory: dir}
	if manifest != "" {
		ops, err := persisted.LoadManifest(manifest)
		if err != nil {
			return nil, err
		}
		opts.Operations = ops
	}

	extractor, err := persisted.HashExtractorFor(sf.GetString("hash-field"))
	if err != nil {
		return nil, err
	}
	opts.HashFromPayload = extractor

	switch {
	case expr != "":
		policy, err := persisted.NewExprPolicy(expr)
		if err != nil {
			return nil, err
		}
		glog.Infof("Unpersisted queries are allowed when %s", policy)
		opts.AllowUnpersisted = policy
	case sf.GetBool("allow-unpersisted"):
		glog.Warningf("Unpersisted queries are allowed for every request")
		opts.AllowUnpersisted = persisted.AllowAlways(true)
	}

	if opts.Operations == nil && opts.Directory == "" {
		glog.Warningf("No persisted operations configured, requests carrying a hash will "+
			"fail with %s", persisted.NotSupportedMessage)
	}
	return opts, opts.Validate()
}

// newMux routes /graphql to the HTTP or the websocket adapter, and adds /metrics and
// /health.
func newMux(reg *persisted.Registry, cfg *config) (http.Handler, error) {
	httpHandler, err := web.NewHandler(reg, cfg.opts, web.NewProxy(cfg.upstream))
	if err != nil {
		return nil, err
	}
	wsHandler, err := subscription.NewHandler(reg, cfg.opts, cfg.wsUpstream)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			wsHandler.ServeHTTP(w, r)
			return
		}
		httpHandler.ServeHTTP(w, r)
	}))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/health", healthHandler(reg, cfg.opts))
	return mux, nil
}

// healthHandler reports unhealthy until the first listing of the operations directory
// has completed.
func healthHandler(reg *persisted.Registry, opts *persisted.Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if opts.Directory != "" {
			select {
			case <-reg.Ready(opts.Directory):
			default:
				status, code = "starting", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		x.Ignore(json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"version": x.Version(),
		}))
	}
}

func run() error {
	x.PrintVersion()

	cfg, err := parseConfig(Serve)
	if err != nil {
		return err
	}
	flushTraces, err := x.RegisterExporters(context.Background(), Serve.Conf, "persisted")
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := flushTraces(sctx); err != nil {
			glog.Warningf("While flushing traces: %v", err)
		}
	}()
	reg := persisted.NewRegistry(persisted.WithRefreshInterval(cfg.refreshInterval))
	defer reg.Close()

	mux, err := newMux(reg, cfg)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		glog.Infof("Bringing up persisted operations gateway at %s/graphql, upstream %s",
			cfg.addr, cfg.upstream)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "persisted operations gateway failed")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		glog.Infof("Shutting down persisted operations gateway")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
