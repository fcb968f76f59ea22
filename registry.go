package fanout

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/coregx/fanout/model"
)

// member is the registry's handle on a subscribed connection.
// The closed flag is set by LeaveAll so a dispatch still holding the handle
// in its snapshot skips the send.
type member struct {
	conn   Connection
	closed atomic.Bool
	topics map[string]struct{}
}

// RegistryStats is a point-in-time view of registry size.
type RegistryStats struct {
	Topics        int `json:"topics"`
	Connections   int `json:"connections"`
	Subscriptions int `json:"subscriptions"`
}

// Registry maps topics to the set of connections subscribed to them.
//
// All operations are safe for concurrent use. Mutations hold the write lock
// for map updates only, so readers observe either the state before or after
// a join or leave, never a partial one. Topics with no members are pruned.
type Registry struct {
	mu      sync.RWMutex
	topics  map[string]map[string]*member
	members map[string]*member
	logger  Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry) error

// WithRegistryLogger sets the registry logger. Defaults to NoopLogger.
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// NewRegistry creates an empty registry.
//
// Example:
//
//	registry, err := fanout.NewRegistry(fanout.WithRegistryLogger(logger))
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		topics:  make(map[string]map[string]*member),
		members: make(map[string]*member),
		logger:  &NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply registry option", err)
		}
	}

	return r, nil
}

// Join subscribes conn to topic, creating the topic if needed.
// Joining a topic the connection is already in is a no-op.
func (r *Registry) Join(topic string, conn Connection) error {
	if conn == nil {
		return NewError(ErrCodeValidation, "connection is required")
	}
	if err := model.ValidateTopic(topic); err != nil {
		return NewErrorWithCause(ErrCodeValidation, "invalid topic", err)
	}
	if isClosed(conn) {
		return ErrConnectionClosed
	}

	id := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		m = &member{conn: conn, topics: make(map[string]struct{})}
		r.members[id] = m
	} else if !sameConnection(m.conn, conn) {
		return NewError(ErrCodeValidation, fmt.Sprintf("connection id already in use: %s", id))
	}
	if _, already := m.topics[topic]; already {
		return nil
	}

	set, ok := r.topics[topic]
	if !ok {
		set = make(map[string]*member)
		r.topics[topic] = set
	}
	set[id] = m
	m.topics[topic] = struct{}{}

	r.logger.Debugf("Connection joined: id=%s, topic=%s", id, topic)
	return nil
}

// Leave unsubscribes conn from topic. Unknown topics and non-members are no-ops.
func (r *Registry) Leave(topic string, conn Connection) {
	if conn == nil {
		return
	}
	id := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[id]
	if !ok {
		return
	}
	if _, in := m.topics[topic]; !in {
		return
	}
	r.detachLocked(topic, id, m)

	r.logger.Debugf("Connection left: id=%s, topic=%s", id, topic)
}

// LeaveAll removes conn from every topic and marks its handle closed.
// It returns the topics the connection was removed from.
func (r *Registry) LeaveAll(conn Connection) []string {
	if conn == nil {
		return []string{}
	}
	id := conn.ID()

	r.mu.Lock()
	m, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		return []string{}
	}
	m.closed.Store(true)

	left := make([]string, 0, len(m.topics))
	for topic := range m.topics {
		left = append(left, topic)
	}
	for _, topic := range left {
		r.detachLocked(topic, id, m)
	}
	r.mu.Unlock()

	sort.Strings(left)
	r.logger.Debugf("Connection removed from all topics: id=%s, topics=%d", id, len(left))
	return left
}

// SubscribersOf returns a snapshot of the connections subscribed to topic.
// The slice is a copy: later joins and leaves do not affect it.
// An unknown topic yields an empty slice.
func (r *Registry) SubscribersOf(topic string) []Connection {
	members := r.snapshot(topic)
	conns := make([]Connection, 0, len(members))
	for _, m := range members {
		conns = append(conns, m.conn)
	}
	return conns
}

// TopicsOf returns the topics conn is currently subscribed to, sorted.
func (r *Registry) TopicsOf(conn Connection) []string {
	if conn == nil {
		return []string{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[conn.ID()]
	if !ok {
		return []string{}
	}
	topics := make([]string, 0, len(m.topics))
	for topic := range m.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Topics returns every topic with at least one subscriber, sorted.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.topics))
	for topic := range r.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Stats reports the registry size.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := 0
	for _, set := range r.topics {
		subs += len(set)
	}
	return RegistryStats{
		Topics:        len(r.topics),
		Connections:   len(r.members),
		Subscriptions: subs,
	}
}

// snapshot copies the member handles of topic under the read lock.
func (r *Registry) snapshot(topic string) []*member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.topics[topic]
	out := make([]*member, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	return out
}

// detachLocked removes member id from topic and prunes empty entries.
// Caller must hold the write lock.
func (r *Registry) detachLocked(topic, id string, m *member) {
	delete(m.topics, topic)
	if len(m.topics) == 0 {
		delete(r.members, id)
	}

	set := r.topics[topic]
	delete(set, id)
	if len(set) == 0 {
		delete(r.topics, topic)
	}
}

// sameConnection reports whether a and b are the same connection value.
// Values of non-comparable types cannot be told apart and are trusted.
func sameConnection(a, b Connection) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return true
	}
	return a == b
}
