package synchronizer

import (
	"sort"

	"github.com/dcrodman/warpsync/internal/connector"
	"github.com/dcrodman/warpsync/internal/protocol"
)

// Precondition checks that a message is permitted in the sender's current
// state. A returned error that is not already a *protocol.Error is reported
// as InvalidMessageContext.
type Precondition func(peer connector.Peer) error

type parser struct {
	decode        func(data []byte) (interface{}, error)
	preconditions []Precondition
	handle        func(peer connector.Peer, msg interface{}) error
}

// Registry maps message types to their parsers and handlers.
type Registry struct {
	parsers map[string]*parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]*parser)}
}

// Register makes messages of type T dispatch to handler once they decoded,
// validated and passed every precondition. Registering a type twice replaces
// the previous handler.
func Register[T any](r *Registry, handler func(peer connector.Peer, msg *T) error, preconditions ...Precondition) {
	r.parsers[protocol.TypeNameOf[T]()] = &parser{
		decode: func(data []byte) (interface{}, error) {
			msg := new(T)
			if err := protocol.DecodeInto(data, msg); err != nil {
				return nil, err
			}
			return msg, nil
		},
		preconditions: preconditions,
		handle: func(peer connector.Peer, msg interface{}) error {
			return handler(peer, msg.(*T))
		},
	}
}

// Has reports whether messageType has a registered handler.
func (r *Registry) Has(messageType string) bool {
	_, ok := r.parsers[messageType]
	return ok
}

// MessageTypes lists the registered message types in lexical order.
func (r *Registry) MessageTypes() []string {
	types := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) lookup(messageType string) (*parser, bool) {
	p, ok := r.parsers[messageType]
	return p, ok
}
