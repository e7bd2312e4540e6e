package driver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gethiox/magneto/internal/pkg/logger"
	"go.uber.org/zap"
)

var log = logger.GetLogger()

// Manager keeps every accepted source connected to one listener, sources are identified by name.
type Manager struct {
	discover Discover
	filter   Filter
	listener Listener

	mu     sync.Mutex
	active map[string]func()
}

func NewManager(discover Discover, filter Filter, fn Listener) *Manager {
	return &Manager{
		discover: discover,
		filter:   filter,
		listener: fn,
		active:   make(map[string]func()),
	}
}

// Scan attaches new accepted sources and detaches the ones that disappeared.
func (m *Manager) Scan() (attached, detached []string) {
	sources := m.filter.Select(m.discover())

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		name := s.Name()
		seen[name] = true
		if _, ok := m.active[name]; ok {
			continue
		}
		stop, err := s.Listen(m.listener)
		if err != nil {
			log.Info(fmt.Sprintf("failed to listen: %v", err), zap.String("source", name), logger.Warning)
			continue
		}
		m.active[name] = stop
		attached = append(attached, name)
		log.Info("Source connected", zap.String("source", name), logger.Info)
	}

	for name, stop := range m.active {
		if seen[name] {
			continue
		}
		stop()
		delete(m.active, name)
		detached = append(detached, name)
		log.Info("Source disconnected", zap.String("source", name), logger.Info)
	}

	sort.Strings(attached)
	sort.Strings(detached)
	return attached, detached
}

func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.active))
	for name := range m.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run scans every interval until ctx is done, non-positive interval scans only once.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	defer m.Close()

	m.Scan()
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan()
		}
	}
}

// Close stops all sources.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, stop := range m.active {
		stop()
		delete(m.active, name)
		log.Info("Source closed", zap.String("source", name), logger.Debug)
	}
}
