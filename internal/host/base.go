package host

import "sync"

// BaseService provides the lifecycle bookkeeping (state, health, last
// error, change notification) that a concrete Service embeds rather than
// reimplements.
type BaseService struct {
	mu            sync.RWMutex
	name          string
	config        ServiceConfig
	state         State
	health        HealthStatus
	lastError     error
	stateChangeCb StateChangeCallback
}

// NewBaseService creates a BaseService in the Initialized state.
func NewBaseService(name string, config ServiceConfig) *BaseService {
	return &BaseService{
		name:   name,
		config: config,
		state:  Initialized,
		health: HealthUnknown,
	}
}

func (b *BaseService) Name() string          { return b.name }
func (b *BaseService) Config() ServiceConfig { return b.config }

func (b *BaseService) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *BaseService) Health() HealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.health
}

func (b *BaseService) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastError
}

func (b *BaseService) SetStateChangeCallback(cb StateChangeCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateChangeCb = cb
}

// UpdateState transitions state/health/lastError together and notifies the
// callback outside the lock, only when the state actually changed.
func (b *BaseService) UpdateState(newState State, health HealthStatus, err error) {
	b.mu.Lock()
	oldState := b.state
	b.state = newState
	b.health = health
	b.lastError = err
	cb := b.stateChangeCb
	b.mu.Unlock()

	if cb != nil && oldState != newState {
		cb(b.name, oldState, newState, health, err)
	}
}

// UpdateHealth updates health alone, notifying only on an actual change.
func (b *BaseService) UpdateHealth(health HealthStatus) {
	b.mu.Lock()
	oldHealth := b.health
	b.health = health
	state := b.state
	err := b.lastError
	cb := b.stateChangeCb
	b.mu.Unlock()

	if cb != nil && oldHealth != health {
		cb(b.name, state, state, health, err)
	}
}
