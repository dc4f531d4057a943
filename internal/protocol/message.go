// Package protocol defines the JSON wire schema exchanged between the server
// and its clients.
//
// Every message is a JSON object carrying a "messageType" field whose value is
// the name of the Go type the payload decodes into, e.g.
//
//	{"messageType":"JoinLobby","lobbyCode":"ABC123","username":"alice"}
//
// Encoded messages may be gzip compressed; Decode detects compression by the
// gzip magic bytes so senders are free to compress selectively.
package protocol

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
)

// Version is the protocol version spoken by this build.
const Version = "1.0"

// MessageTypeKey is the JSON field identifying the type of every message.
const MessageTypeKey = "messageType"

// Maximum size of a decompressed message.
const maxMessageSize = 4 * 1024 * 1024

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMessageTooLarge  = errors.New("message exceeds maximum size")
)

var gzipMagic = []byte{0x1f, 0x8b}

// Validator is implemented by messages with domain constraints beyond their
// JSON structure. A non-nil error is either a *Failure carrying the family
// specific failure message or a plain error describing the problem.
type Validator interface {
	Validate() error
}

// TypeName returns the messageType used on the wire for msg.
func TypeName(msg interface{}) string {
	t := reflect.TypeOf(msg)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// TypeNameOf returns the messageType used on the wire for messages of type T.
func TypeNameOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().Name()
}

// Encode serializes msg and injects its messageType. Messages at least
// compressionThreshold bytes long are gzip compressed; a threshold of 0
// disables compression.
func Encode(msg interface{}, compressionThreshold int) ([]byte, error) {
	name := TypeName(msg)
	if name == "" {
		return nil, fmt.Errorf("cannot encode message of type %T", msg)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", name, err)
	}
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("error encoding %s: messages must be JSON objects", name)
	}

	header, _ := json.Marshal(name)
	encoded := make([]byte, 0, len(body)+len(header)+len(MessageTypeKey)+4)
	encoded = append(encoded, `{"`+MessageTypeKey+`":`...)
	encoded = append(encoded, header...)
	if len(body) > 2 {
		encoded = append(encoded, ',')
	}
	encoded = append(encoded, body[1:]...)

	if compressionThreshold > 0 && len(encoded) >= compressionThreshold {
		return compress(encoded)
	}
	return encoded, nil
}

// Decompress returns data with any gzip compression removed.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, gzipMagic) {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	defer reader.Close()

	decompressed, err := io.ReadAll(io.LimitReader(reader, maxMessageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(decompressed) > maxMessageSize {
		return nil, ErrMessageTooLarge
	}
	return decompressed, nil
}

// DecodeType extracts the messageType of an uncompressed message. Payloads
// that are not JSON objects or lack a string messageType are malformed.
func DecodeType(data []byte) (string, error) {
	var header map[string]json.RawMessage
	if err := json.Unmarshal(data, &header); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	raw, ok := header[MessageTypeKey]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrMalformedMessage, MessageTypeKey)
	}
	var messageType string
	if err := json.Unmarshal(raw, &messageType); err != nil || messageType == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrMalformedMessage, MessageTypeKey)
	}
	return messageType, nil
}

// DecodeInto unmarshals an uncompressed message into target.
func DecodeInto(data []byte, target interface{}) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("error compressing message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("error compressing message: %w", err)
	}
	return buf.Bytes(), nil
}
