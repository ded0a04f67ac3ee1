package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/pkg/serrors"
)

type Subscriber struct {
	Handler any
}

type EventBus interface {
	Publish(args ...any)
	Subscribe(handler any)
	Unsubscribe(handler any)
	Clear()
	SubscribersCount() int
}

type EventBusWithError interface {
	EventBus
	PublishE(args ...any) error
}

var (
	ErrNoSubscribers        = serrors.NewError("EVENTBUS_NO_SUBSCRIBERS", "no matching subscribers", "")
	ErrInvalidHandlerReturn = serrors.NewError("EVENTBUS_INVALID_HANDLER_RETURN", "invalid handler return signature", "")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type publisherImpl struct {
	log         *logrus.Logger
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewEventPublisher returns an in-process bus that routes events to handlers by signature.
func NewEventPublisher(log *logrus.Logger) EventBusWithError {
	return &publisherImpl{log: log}
}

// MatchSignature reports whether handler can be called with args.
func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}

	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		argType := reflect.TypeOf(arg)
		if paramType.Kind() == reflect.Interface {
			if !argType.Implements(paramType) {
				return false
			}
			continue
		}
		if !argType.AssignableTo(paramType) {
			return false
		}
	}
	return true
}

func callArgs(handler reflect.Type, args []any) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Zero(handler.In(i))
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

func (p *publisherImpl) matching(args []any) []Subscriber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Subscriber, 0, len(p.subscribers))
	for _, s := range p.subscribers {
		if MatchSignature(s.Handler, args) {
			out = append(out, s)
		}
	}
	return out
}

// invoke calls one handler, converting panics and a non-nil error return into an error.
func invoke(handler any, args []any) (err error) {
	v := reflect.ValueOf(handler)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus: handler %s panicked: %v", v.Type().String(), r)
		}
	}()

	out := v.Call(callArgs(v.Type(), args))
	switch len(out) {
	case 0:
		return nil
	case 1:
		if out[0].Type() != errorType {
			return fmt.Errorf("%w: handler %s return type is %s", ErrInvalidHandlerReturn, v.Type().String(), out[0].Type().String())
		}
		if out[0].IsNil() {
			return nil
		}
		return out[0].Interface().(error)
	default:
		return fmt.Errorf("%w: handler %s returned %d values", ErrInvalidHandlerReturn, v.Type().String(), len(out))
	}
}

// Publish delivers args to every matching handler, logging failures.
func (p *publisherImpl) Publish(args ...any) {
	subs := p.matching(args)
	if len(subs) == 0 {
		if p.log != nil {
			p.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", args)
		}
		return
	}
	for _, s := range subs {
		if err := invoke(s.Handler, args); err != nil && p.log != nil {
			p.log.WithError(err).Error("eventbus: handler failed")
		}
	}
}

// PublishE delivers args to every matching handler and joins their errors.
func (p *publisherImpl) PublishE(args ...any) error {
	subs := p.matching(args)
	if len(subs) == 0 {
		return ErrNoSubscribers
	}
	var errs []error
	for _, s := range subs {
		if err := invoke(s.Handler, args); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *publisherImpl) Subscribe(handler any) {
	if t := reflect.TypeOf(handler); t == nil || t.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, Subscriber{Handler: handler})
}

func (p *publisherImpl) Unsubscribe(handler any) {
	target := reflect.ValueOf(handler).Pointer()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.subscribers {
		if reflect.ValueOf(s.Handler).Pointer() == target {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

func (p *publisherImpl) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = nil
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
