package action

import (
	"context"
	"log"
	"sync"
)

// Handler 动作处理器
type Handler func(ctx context.Context, a Action) error

// Dispatcher 动作分发接口
type Dispatcher interface {
	// Dispatch 分发动作
	Dispatch(ctx context.Context, a Action) error
}

// Bus 动作总线接口
type Bus interface {
	Dispatcher
	// Subscribe 订阅指定类型
	Subscribe(t Type, handler Handler) error
	// SubscribeAll 订阅所有动作
	SubscribeAll(handler Handler) error
}

// DispatchFunc adapts a plain function to Dispatcher.
type DispatchFunc func(ctx context.Context, a Action) error

// Dispatch calls f.
func (f DispatchFunc) Dispatch(ctx context.Context, a Action) error {
	return f(ctx, a)
}

// Logger 日志接口
type Logger interface {
	Printf(format string, v ...any)
}

type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// MemoryBus 内存动作总线
// Handlers run synchronously on the dispatching goroutine, in subscription order.
type MemoryBus struct {
	mu          sync.RWMutex
	handlers    map[Type][]Handler
	allHandlers []Handler
	logger      Logger
}

// BusOption 配置选项
type BusOption func(*MemoryBus)

// WithLogger sets a custom logger for the bus.
func WithLogger(logger Logger) BusOption {
	return func(b *MemoryBus) {
		b.logger = logger
	}
}

// NewMemoryBus creates a new in-memory action bus.
func NewMemoryBus(opts ...BusOption) *MemoryBus {
	bus := &MemoryBus{
		handlers:    make(map[Type][]Handler),
		allHandlers: make([]Handler, 0),
		logger:      &defaultLogger{},
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// Dispatch delivers an action to the handlers subscribed to its type, then to
// the catch-all handlers. Handler errors and panics are logged and swallowed.
func (b *MemoryBus) Dispatch(ctx context.Context, a Action) error {
	b.mu.RLock()
	typeHandlers := make([]Handler, len(b.handlers[a.Type]))
	copy(typeHandlers, b.handlers[a.Type])
	allHandlers := make([]Handler, len(b.allHandlers))
	copy(allHandlers, b.allHandlers)
	b.mu.RUnlock()

	for _, handler := range typeHandlers {
		b.executeHandler(ctx, handler, a)
	}
	for _, handler := range allHandlers {
		b.executeHandler(ctx, handler, a)
	}

	return nil
}

func (b *MemoryBus) executeHandler(ctx context.Context, handler Handler, a Action) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("[ActionBus] handler panic for action %s: %v", a.Type, r)
		}
	}()

	if err := handler(ctx, a); err != nil {
		b.logger.Printf("[ActionBus] handler error for action %s (req=%s): %v", a.Type, a.RequestID, err)
	}
}

// Subscribe subscribes a handler to a specific action type.
func (b *MemoryBus) Subscribe(t Type, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[t] = append(b.handlers[t], handler)
	return nil
}

// SubscribeAll subscribes a handler to every action.
func (b *MemoryBus) SubscribeAll(handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Unsubscribe removes all handlers for a specific action type.
func (b *MemoryBus) Unsubscribe(t Type) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, t)
}

// HandlerCount returns the number of handlers for a specific action type.
func (b *MemoryBus) HandlerCount(t Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[t])
}

// AllHandlerCount returns the number of catch-all handlers.
func (b *MemoryBus) AllHandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.allHandlers)
}

// NoOpBus 空操作总线（用于测试或不需要消费者时）
type NoOpBus struct{}

// NewNoOpBus creates a new no-op bus.
func NewNoOpBus() *NoOpBus {
	return &NoOpBus{}
}

// Dispatch does nothing.
func (b *NoOpBus) Dispatch(_ context.Context, _ Action) error {
	return nil
}

// Subscribe does nothing.
func (b *NoOpBus) Subscribe(_ Type, _ Handler) error {
	return nil
}

// SubscribeAll does nothing.
func (b *NoOpBus) SubscribeAll(_ Handler) error {
	return nil
}
