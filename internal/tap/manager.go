package tap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/scope/internal/metrics"
	"github.com/angeloszaimis/scope/internal/route"
)

const DefaultBindHost = "127.0.0.1"

type Options struct {
	// BindHost is the host every tap listener binds to.
	BindHost string
	// TLSConfig is served by taps whose upstream uses https (nil = plain HTTP).
	TLSConfig *tls.Config
	// Collector receives traffic events (nil = no metrics).
	Collector *metrics.Collector
}

// Manager owns every tap. Creation and removal are serialized by mutex;
// requests on different taps never contend on it.
type Manager struct {
	mutex  sync.RWMutex
	taps   map[int]*Tap
	lastID int
	logger *slog.Logger
	opts   Options
}

func NewManager(logger *slog.Logger, opts Options) *Manager {
	if opts.BindHost == "" {
		opts.BindHost = DefaultBindHost
	}

	return &Manager{
		taps:   make(map[int]*Tap),
		logger: logger,
		opts:   opts,
	}
}

// CreateTap binds a new tap forwarding to address. Port 0 picks a free port.
// On failure nothing is registered and no id is consumed.
func (m *Manager) CreateTap(address string, port int, label string) (Info, error) {
	u, err := ParseAddress(address)
	if err != nil {
		return Info{}, err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	id := m.lastID + 1
	t, err := newTap(m.logger, tapConfig{
		id:        id,
		address:   u,
		port:      port,
		label:     label,
		bindHost:  m.opts.BindHost,
		tlsConfig: m.opts.TLSConfig,
		collector: m.opts.Collector,
	})
	if err != nil {
		m.logger.Warn("Failed to create tap",
			slog.String("address", address),
			slog.Int("port", port),
			slog.Any("err", err))
		return Info{}, err
	}

	m.lastID = id
	m.taps[id] = t
	t.start()

	t.logger.Info("Created tap",
		slog.String("listen", t.server.Addr().String()),
		slog.String("upstream", t.Info().Address))

	return t.Info(), nil
}

// RemoveTap stops the tap's listener and discards its routes. The port is
// free once RemoveTap returns.
func (m *Manager) RemoveTap(ctx context.Context, id int) error {
	m.mutex.Lock()
	t, exists := m.taps[id]
	delete(m.taps, id)
	m.mutex.Unlock()

	if !exists {
		return fmt.Errorf("%w: %d", ErrTapNotFound, id)
	}

	err := t.stop(ctx)

	m.opts.Collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventTapRemoved,
		Timestamp: time.Now(),
		Tap:       strconv.Itoa(id),
	})

	t.logger.Info("Removed tap")
	return err
}

// ListTaps returns every tap ordered by id.
func (m *Manager) ListTaps() []Info {
	m.mutex.RLock()
	infos := make([]Info, 0, len(m.taps))
	for _, t := range m.taps {
		infos = append(infos, t.Info())
	}
	m.mutex.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})

	return infos
}

func (m *Manager) GetTap(id int) (Info, error) {
	t, err := m.tap(id)
	if err != nil {
		return Info{}, err
	}
	return t.Info(), nil
}

func (m *Manager) ListRoutes(id int) ([]route.Info, error) {
	t, err := m.tap(id)
	if err != nil {
		return nil, err
	}
	return t.Routes().Routes(), nil
}

func (m *Manager) Pin(id int, method, path string, resp route.PinnedResponse) error {
	t, err := m.tap(id)
	if err != nil {
		return err
	}
	return t.Routes().Pin(method, path, resp)
}

func (m *Manager) Unpin(id int, method, path string) error {
	t, err := m.tap(id)
	if err != nil {
		return err
	}
	return t.Routes().Unpin(method, path)
}

// Responses returns the recorded history of one route.
func (m *Manager) Responses(id int, method, path string) ([]route.RecordedResponse, error) {
	t, err := m.tap(id)
	if err != nil {
		return nil, err
	}

	rt, exists := t.Routes().Get(method, path)
	if !exists {
		return nil, fmt.Errorf("%w: %s", route.ErrRouteNotFound, route.NewKey(method, path))
	}
	return rt.Responses(), nil
}

func (m *Manager) ClearResponses(id int, method, path string) error {
	t, err := m.tap(id)
	if err != nil {
		return err
	}
	return t.Routes().ClearResponses(method, path)
}

func (m *Manager) ClearAllResponses(id int) error {
	t, err := m.tap(id)
	if err != nil {
		return err
	}
	t.Routes().ClearAll()
	return nil
}

// Close stops every tap concurrently.
func (m *Manager) Close(ctx context.Context) error {
	m.mutex.Lock()
	taps := m.taps
	m.taps = make(map[int]*Tap)
	m.mutex.Unlock()

	var g errgroup.Group
	for _, t := range taps {
		g.Go(func() error {
			return t.stop(ctx)
		})
	}

	return g.Wait()
}

func (m *Manager) tap(id int) (*Tap, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	t, exists := m.taps[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrTapNotFound, id)
	}
	return t, nil
}
