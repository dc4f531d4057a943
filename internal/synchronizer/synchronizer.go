// Package synchronizer pumps connector events and turns received bytes into
// typed, validated messages dispatched to registered handlers.
//
// The server and client synchronizers embed a Synchronizer and differ only in
// the handlers they register and the session state they keep. Dispatch runs
// entirely inside ProcessEvents on the caller's goroutine.
package synchronizer

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/connector"
	coredebug "github.com/dcrodman/warpsync/internal/core/debug"
	"github.com/dcrodman/warpsync/internal/protocol"
)

// PeerHandler is told about peers joining and leaving.
type PeerHandler interface {
	PeerConnected(peer connector.Peer)
	PeerDisconnected(peer connector.Peer, reason connector.DisconnectReason)
}

// Options configure a Synchronizer.
type Options struct {
	Logger logrus.FieldLogger
	// Messages at least this long are compressed; zero disables compression.
	CompressionThreshold int
	// Peers causing more protocol errors than this are kicked; zero disables
	// the limit.
	MaxProtocolErrors int
	// MessageLogging dumps every message sent and received at debug level.
	MessageLogging bool
	// SilentRejections logs rejected messages without answering them. Clients
	// never reply to the server about its own messages.
	SilentRejections bool
}

// Synchronizer owns a set of connectors and dispatches their messages.
type Synchronizer struct {
	Logger   logrus.FieldLogger
	Registry *Registry

	// OnUnknownMessage, when set, is called for every message whose type has
	// no registered handler.
	OnUnknownMessage func(peer connector.Peer, messageType string)

	handler              PeerHandler
	messages             *coredebug.MessageLogger
	compressionThreshold int
	maxProtocolErrors    int
	silentRejections     bool

	connectors     []connector.Connector
	protocolErrors map[string]int
	closed         bool
}

func New(handler PeerHandler, opts Options) *Synchronizer {
	return &Synchronizer{
		Logger:               opts.Logger,
		Registry:             NewRegistry(),
		handler:              handler,
		messages:             &coredebug.MessageLogger{Logger: opts.Logger, Enabled: opts.MessageLogging},
		compressionThreshold: opts.CompressionThreshold,
		maxProtocolErrors:    opts.MaxProtocolErrors,
		silentRejections:     opts.SilentRejections,
		protocolErrors:       make(map[string]int),
	}
}

// AddConnector makes the synchronizer pump c's events and close it on Close.
func (s *Synchronizer) AddConnector(c connector.Connector) {
	s.connectors = append(s.connectors, c)
}

func (s *Synchronizer) Connectors() []connector.Connector {
	return s.connectors
}

// ProcessEvents drains the events of every connector, dispatching received
// messages as it goes.
func (s *Synchronizer) ProcessEvents() {
	for _, c := range s.connectors {
		c.ProcessEvents(s)
	}
}

// Close disconnects every peer with reason and delivers the resulting
// disconnections. It is safe to call more than once.
func (s *Synchronizer) Close(reason connector.DisconnectReason) error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, c := range s.connectors {
		if err := c.Close(reason); err != nil {
			errs = append(errs, err)
		}
	}
	s.ProcessEvents()
	return errors.Join(errs...)
}

func (s *Synchronizer) OnConnectionAttempted(peer connector.Peer) {
	s.Logger.WithFields(logrus.Fields{"peer": peer.ID(), "address": peer.RemoteAddr()}).
		Debug("connection attempted")
}

func (s *Synchronizer) OnConnected(peer connector.Peer) {
	s.Logger.WithFields(logrus.Fields{"peer": peer.ID(), "address": peer.RemoteAddr()}).
		Info("peer connected")
	delete(s.protocolErrors, peer.ID())
	s.handler.PeerConnected(peer)
}

func (s *Synchronizer) OnDisconnected(peer connector.Peer, reason connector.DisconnectReason) {
	s.Logger.WithFields(logrus.Fields{"peer": peer.ID(), "reason": reason}).
		Info("peer disconnected")
	delete(s.protocolErrors, peer.ID())
	s.handler.PeerDisconnected(peer, reason)
}

func (s *Synchronizer) OnMessageReceived(peer connector.Peer, data []byte) {
	_ = s.ParseMessage(peer, data)
}

// ParseMessage decodes, validates and dispatches one message. Rejections are
// answered to the sender and returned; they never affect other messages.
func (s *Synchronizer) ParseMessage(peer connector.Peer, data []byte) error {
	err := s.parse(peer, data)
	switch {
	case err == nil:
	case s.silentRejections:
		s.Logger.WithField("peer", peer.ID()).Warnf("dropped message: %v", err)
	default:
		s.reject(peer, err)
	}
	return err
}

func (s *Synchronizer) parse(peer connector.Peer, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.WithField("peer", peer.ID()).
				Errorf("panic while handling message: %v, trace: %s", r, debug.Stack())
			err = fmt.Errorf("panic while handling message: %v", r)
		}
	}()

	payload, err := protocol.Decompress(data)
	if err != nil {
		return protocol.NewError(protocol.ErrorMalformedMessage, "%v", err)
	}

	messageType, err := protocol.DecodeType(payload)
	if err != nil {
		return protocol.NewError(protocol.ErrorMalformedMessage, "%v", err)
	}

	p, ok := s.Registry.lookup(messageType)
	if !ok {
		if s.OnUnknownMessage != nil {
			s.OnUnknownMessage(peer, messageType)
		}
		return protocol.NewError(protocol.ErrorUnknownMessage, "unknown message type %s", messageType)
	}

	msg, err := p.decode(payload)
	if err != nil {
		return protocol.NewError(protocol.ErrorMalformedMessage, "error decoding %s: %v", messageType, err)
	}
	s.messages.Received(peer.ID(), msg)

	if v, ok := msg.(protocol.Validator); ok {
		if err := v.Validate(); err != nil {
			var failure *protocol.Failure
			if errors.As(err, &failure) {
				return err
			}
			return protocol.NewError(protocol.ErrorInvalidMessageParameters, "invalid %s: %v", messageType, err)
		}
	}

	for _, precondition := range p.preconditions {
		if err := precondition(peer); err != nil {
			var protocolErr *protocol.Error
			if errors.As(err, &protocolErr) {
				return err
			}
			return protocol.ContextError("%s is not permitted: %v", messageType, err)
		}
	}

	return p.handle(peer, msg)
}

// reject answers a failed message. Family failures and protocol errors are
// sent as is; anything else is an internal error whose details stay in the
// log.
func (s *Synchronizer) reject(peer connector.Peer, err error) {
	logger := s.Logger.WithField("peer", peer.ID())

	var (
		reply       interface{}
		failure     *protocol.Failure
		protocolErr *protocol.Error
	)
	switch {
	case errors.As(err, &failure):
		logger.Debugf("request failed: %v", err)
		reply = failure.Reply
	case errors.As(err, &protocolErr):
		logger.Debugf("rejected message: %v", err)
		reply = protocolErr
		if s.countProtocolError(peer, protocolErr) {
			return
		}
	default:
		logger.Errorf("error handling message: %v", err)
		reply = protocol.NewError(protocol.ErrorInternalError, "the server failed to process the message")
	}

	if sendErr := s.SendMessage(peer, reply); sendErr != nil {
		logger.Warnf("failed to send rejection: %v", sendErr)
	}
	if protocolErr != nil && protocolErr.IsFatal {
		_ = peer.Disconnect(connector.DisconnectKicked)
	}
}

// countProtocolError records a protocol violation and kicks the peer once it
// exceeded its budget, reporting whether it did.
func (s *Synchronizer) countProtocolError(peer connector.Peer, protocolErr *protocol.Error) bool {
	switch protocolErr.ErrorType {
	case protocol.ErrorUnknownMessage, protocol.ErrorMalformedMessage,
		protocol.ErrorInvalidMessageParameters, protocol.ErrorInvalidMessageContext:
	default:
		return false
	}

	s.protocolErrors[peer.ID()]++
	if s.maxProtocolErrors <= 0 || s.protocolErrors[peer.ID()] <= s.maxProtocolErrors {
		return false
	}

	s.Logger.WithField("peer", peer.ID()).Warnf("kicking peer after %d protocol errors", s.protocolErrors[peer.ID()])
	fatal := &protocol.Error{
		ErrorType: protocolErr.ErrorType,
		Message:   "too many protocol errors",
		IsFatal:   true,
	}
	_ = s.SendMessage(peer, fatal)
	_ = peer.Disconnect(connector.DisconnectKicked)
	return true
}

// SendMessage encodes msg and sends it to peer.
func (s *Synchronizer) SendMessage(peer connector.Peer, msg interface{}) error {
	s.messages.Sent(peer.ID(), msg)

	data, err := protocol.Encode(msg, s.compressionThreshold)
	if err != nil {
		return err
	}
	if err := peer.Send(data); err != nil {
		return fmt.Errorf("error sending %s to %s: %w", protocol.TypeName(msg), peer.ID(), err)
	}
	return nil
}
