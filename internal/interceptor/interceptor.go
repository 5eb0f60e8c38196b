package interceptor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/scope/internal/metrics"
	"github.com/angeloszaimis/scope/internal/route"
	"github.com/angeloszaimis/scope/internal/upstream"
)

type Interceptor struct {
	logger           *slog.Logger
	tapID            string
	routes           *route.Registry
	upstream         *upstream.Upstream
	proxy            *httputil.ReverseProxy
	metricsCollector *metrics.Collector
}

// exchange is the per-request state the proxy hooks need.
type exchange struct {
	key   route.Key
	log   *slog.Logger
	start time.Time
}

type exchangeKey struct{}

func NewInterceptor(logger *slog.Logger, tapID int, routes *route.Registry, up *upstream.Upstream, collector *metrics.Collector) *Interceptor {
	i := &Interceptor{
		logger:           logger,
		tapID:            strconv.Itoa(tapID),
		routes:           routes,
		upstream:         up,
		metricsCollector: collector,
	}

	i.proxy = up.ReverseProxy(upstream.Hooks{
		OnResponse: i.record,
		OnError:    i.forwardFailed,
	})
	i.proxy.ErrorLog = slog.NewLogLogger(logger.Handler(), slog.LevelWarn)

	return i
}

func (i *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := route.NewKey(r.Method, r.URL.Path)
	log := i.logger.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("route", key.String()))

	i.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventRequestReceived,
		Timestamp: time.Now(),
		Tap:       i.tapID,
	})

	rt, created := i.routes.GetOrCreate(key.Method, key.Path)
	if created {
		log.Info("Created route")
	}

	if pinned, ok := rt.Pinned(); ok {
		log.Debug("Serving pinned response")
		i.servePinned(w, pinned)
		i.emitEvent(metrics.MetricEvent{
			Type:      metrics.EventPinnedServed,
			Timestamp: time.Now(),
			Tap:       i.tapID,
		})
		return
	}

	log.Debug("Forwarding to upstream",
		slog.String("upstream", i.upstream.URL().String()))

	ctx := context.WithValue(r.Context(), exchangeKey{}, &exchange{
		key:   key,
		log:   log,
		start: time.Now(),
	})
	i.proxy.ServeHTTP(w, r.WithContext(ctx))
}

func (i *Interceptor) servePinned(w http.ResponseWriter, pinned route.PinnedResponse) {
	for name, value := range pinned.Headers {
		w.Header().Set(name, value)
	}

	status := pinned.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.WriteHeader(status)
	_, _ = io.WriteString(w, pinned.Payload)
}

// record stores an upstream response in the route's history before the proxy
// relays it.
func (i *Interceptor) record(resp *http.Response, payload []byte) {
	ex := exchangeFrom(resp.Request.Context(), i.logger)
	duration := time.Since(ex.start)

	recorded := route.NewRecordedResponse(resp.StatusCode, resp.Header, payload)
	if err := i.routes.RecordResponse(ex.key.Method, ex.key.Path, recorded); err != nil {
		ex.log.Warn("Failed to record response", slog.Any("err", err))
		return
	}

	i.emitEvent(metrics.MetricEvent{
		Type:       metrics.EventResponseRecorded,
		Timestamp:  time.Now(),
		Tap:        i.tapID,
		Duration:   duration,
		StatusCode: resp.StatusCode,
	})

	ex.log.Info("Recorded response",
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", duration))
}

// forwardFailed runs when upstream cannot be reached; the proxy answers 502.
func (i *Interceptor) forwardFailed(r *http.Request, err error) {
	ex := exchangeFrom(r.Context(), i.logger)

	ex.log.Error("Failed to forward request",
		slog.String("upstream", i.upstream.URL().String()),
		slog.Any("err", err))

	i.emitEvent(metrics.MetricEvent{
		Type:      metrics.EventForwardFailed,
		Timestamp: time.Now(),
		Tap:       i.tapID,
	})
}

func (i *Interceptor) emitEvent(event metrics.MetricEvent) {
	i.metricsCollector.Emit(event)
}

func exchangeFrom(ctx context.Context, fallback *slog.Logger) *exchange {
	if ex, ok := ctx.Value(exchangeKey{}).(*exchange); ok {
		return ex
	}
	return &exchange{log: fallback, start: time.Now()}
}
