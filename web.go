package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/handsup/hands"
	"github.com/julienschmidt/httprouter"
)

const (
	timeout time.Duration = 10 * time.Second
)

// app bundles everything the handlers share.
type app struct {
	cfg      *Config
	log      *slog.Logger
	registry *hands.Registry
	tokens   *hands.TokenCodec
	metrics  *Metrics
	errs     chan error
}

func newApp(cfg *Config, logger *slog.Logger) (*app, error) {
	tokens, err := hands.NewTokenCodec([]byte(cfg.secret), cfg.tokenTTL)
	if err != nil {
		return nil, err
	}

	m := newMetrics()

	registry := hands.NewRegistry(
		hands.WithLogger(logger),
		hands.WithPushHook(func(n int) {
			m.snapshotsPushed.Add(float64(n))
		}),
		hands.WithCloseHook(func(_ *hands.Session, reason string) {
			m.sessionsClosed.WithLabelValues(reason).Inc()
			m.sessionsActive.Dec()
		}),
	)

	return &app{
		cfg:      cfg,
		log:      logger,
		registry: registry,
		tokens:   tokens,
		metrics:  m,
		errs:     make(chan error, 64),
	}, nil
}

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(a *app) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(a.cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("handsup v" + releaseVersion + "\n"))
		if err != nil {
			a.errs <- err

			return
		}

		a.log.Debug("served version page",
			"size", humanReadableSize(int64(written)),
			"ip", realIP(r),
			"duration", time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func newRouter(a *app) *httprouter.Router {
	cfg := a.cfg

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		a.log.Error("panic while serving request", "path", r.URL.Path, "panic", i)

		serveErrorPage(cfg, w, http.StatusInternalServerError, "An error has occurred. Please try again.")
	}

	mux.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveErrorPage(cfg, w, http.StatusNotFound, "Page not found.")
	})

	mux.GET(cfg.prefix+"/", serveHomePage(a))

	mux.GET(cfg.prefix+"/assets/:file", serveAssets(a))

	mux.GET(cfg.prefix+"/favicon.svg", serveFavicons(a))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(a))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(a))

	mux.GET(cfg.prefix+"/version", serveVersion(a))

	if cfg.metrics {
		mux.GET(cfg.prefix+"/metrics", serveMetrics(a.metrics))
	}

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerHands(a, mux)

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting handsup", "version", releaseVersion)

	if cfg.presets != "" {
		presets, err := loadPresets(cfg.presets)
		if err != nil {
			return err
		}
		if err := a.applyPresets(presets); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(a),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-a.errs:
				logger.Debug("write failed", "err", err)
			}
		}
	}()

	go a.registry.Run(ctx, cfg.sessionTimeout)

	go func() {
		var err error

		logger.Info("listening", "url", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/")

		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("stopped")

	return nil
}
