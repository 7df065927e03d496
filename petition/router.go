package petition

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"petition-gateway/middleware/cors"
	"petition-gateway/middleware/ratelimit"
	"petition-gateway/petition/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Signer é o caminho de escrita (application.SignService).
type Signer interface {
	Sign(ctx context.Context, sub domain.Submission) (domain.PutResult, error)
}

// Counter é o caminho de leitura (application.Aggregator).
type Counter interface {
	Total(ctx context.Context) (int64, error)
	ByRegion(ctx context.Context) (map[string]int64, error)
	One(ctx context.Context, region string) (string, int64, error)
	TTL() time.Duration
}

// HTTPMetrics recebe a duração e o in-flight das requisições. Pode ser nil.
type HTTPMetrics interface {
	ObserveRequest(route, method string, status int, d time.Duration)
	TrackInFlight() func()
}

type Options struct {
	Signer  Signer
	Counter Counter

	AllowedOrigins []string
	CORSMaxAge     time.Duration

	// Fingerprinter deriva a chave de rate limit a partir do IP do cliente.
	Fingerprinter *ratelimit.Fingerprinter
	KeyHeader     string
	TrustXFF      bool

	// ReadLimit envolve GET /api/count (ex.: ratelimit.Middleware). Opcional.
	ReadLimit func(http.Handler) http.Handler

	Metrics        HTTPMetrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

type handler struct {
	signer  Signer
	counter Counter
	fp      *ratelimit.Fingerprinter
	keyHdr  string
	trustXF bool
	metrics HTTPMetrics
	logger  *slog.Logger
}

// NewHandler monta o roteador chi com CORS, métricas e recuperação de pânico.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Signer == nil || opts.Counter == nil {
		return nil, fmt.Errorf("petition: Signer and Counter are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if opts.Fingerprinter == nil {
		fp, err := ratelimit.NewFingerprinter("", nil)
		if err != nil {
			return nil, err
		}
		opts.Fingerprinter = fp
	}
	corsMW, err := cors.Middleware(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         opts.CORSMaxAge,
	})
	if err != nil {
		return nil, err
	}
	readLimit := opts.ReadLimit
	if readLimit == nil {
		readLimit = func(next http.Handler) http.Handler { return next }
	}

	h := &handler{
		signer:  opts.Signer,
		counter: opts.Counter,
		fp:      opts.Fingerprinter,
		keyHdr:  opts.KeyHeader,
		trustXF: opts.TrustXFF,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.instrument)
	r.Use(h.recoverer)
	// antes de Route: os sub-roteadores herdam
	r.NotFound(writeNotFound)
	r.MethodNotAllowed(writeMethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(corsMW)
		api.Post("/sign", h.sign)
		api.Options("/sign", preflight)
		api.With(readLimit).Get("/count", h.count)
		api.Options("/count", preflight)
	})
	return r, nil
}

// preflight só chega aqui em OPTIONS sem Access-Control-Request-Method;
// o preflight real é respondido pelo middleware de CORS.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		done := h.metrics.TrackInFlight()
		defer done()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.ObserveRequest(route, r.Method, status, time.Since(start))
	})
}

func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.Error("panic serving request",
				"component", "http",
				"route", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"panic", rec,
			)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: string(domain.KindInternal)})
		}()
		next.ServeHTTP(w, r)
	})
}
