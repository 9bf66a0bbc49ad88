package system

import (
	"context"
	"fmt"
)

// Manager starts and stops registered services in a deterministic order.
// Services are started in registration order and stopped in reverse.
type Manager struct {
	services []Service
	started  []Service
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a service. Registration order defines start order.
func (m *Manager) Register(svc Service) {
	if svc == nil {
		return
	}
	m.services = append(m.services, svc)
}

// StartAll starts every registered service. If a service fails to start,
// already-started services are stopped in reverse order and the start
// error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			stopErr := m.StopAll(ctx)
			if stopErr != nil {
				return fmt.Errorf("start %s: %w (rollback: %v)", svc.Name(), err, stopErr)
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.started = append(m.started, svc)
	}
	return nil
}

// StopAll stops started services in reverse order, collecting the first
// error but always attempting every stop.
func (m *Manager) StopAll(ctx context.Context) error {
	var firstErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		if err := svc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
		}
	}
	m.started = nil
	return firstErr
}
