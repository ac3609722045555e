package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/grindscale/devmock/settings/internal/store"
)

// Kind identifies what a parsed command asks for.
type Kind int

const (
	// Ignore means the message is not a command; no reply, no change.
	Ignore Kind = iota
	// Get asks for the whole settings map.
	Get
	// Set assigns one key.
	Set
	// Batch assigns several keys from a JSON object.
	Batch
)

func (k Kind) String() string {
	switch k {
	case Get:
		return "get"
	case Set:
		return "set"
	case Batch:
		return "batch"
	default:
		return "ignored"
	}
}

// ErrMalformedSet is returned for a set command that does not split into
// exactly three ":"-separated fields.
var ErrMalformedSet = errors.New("malformed set command")

// ErrMalformedBatch is returned when a batch payload is not a JSON object.
var ErrMalformedBatch = errors.New("malformed batch command")

const batchPrefix = "batch:"

// Command is one parsed client message.
type Command struct {
	Kind Kind

	// Key and Value are set for Set. Value is kept as the raw string.
	Key   string
	Value string

	// Pairs is set for Batch, in the order they appear in the payload.
	Pairs []store.Setting
}

// Parser turns messages into commands.
//
// By default a message is a set command whenever it contains "set" anywhere,
// so "reset:foo:1" assigns foo. This reproduces a probable bug in the Python
// mock the UI was written against. Strict requires a "set:" prefix.
type Parser struct {
	Strict bool
}

// Parse classifies msg.
func (p Parser) Parse(msg string) (Command, error) {
	switch {
	case msg == "get":
		return Command{Kind: Get}, nil
	case strings.HasPrefix(msg, batchPrefix):
		return parseBatch(strings.TrimPrefix(msg, batchPrefix))
	case p.isSet(msg):
		parts := strings.Split(msg, ":")
		if len(parts) != 3 {
			return Command{}, fmt.Errorf("%w: %q has %d fields, want 3", ErrMalformedSet, msg, len(parts))
		}
		return Command{Kind: Set, Key: parts[1], Value: parts[2]}, nil
	default:
		return Command{Kind: Ignore}, nil
	}
}

func (p Parser) isSet(msg string) bool {
	if p.Strict {
		return strings.HasPrefix(msg, "set:")
	}
	return strings.Contains(msg, "set")
}

// parseBatch decodes a JSON object, keeping key order and JSON value types.
func parseBatch(payload string) (Command, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Command{}, fmt.Errorf("%w: payload is not a JSON object", ErrMalformedBatch)
	}

	var pairs []store.Setting
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Command{}, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
		}
		key, ok := tok.(string)
		if !ok {
			return Command{}, fmt.Errorf("%w: unexpected token %v", ErrMalformedBatch, tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return Command{}, fmt.Errorf("%w: value for %q: %v", ErrMalformedBatch, key, err)
		}
		pairs = append(pairs, store.Setting{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedBatch, err)
	}
	return Command{Kind: Batch, Pairs: pairs}, nil
}
