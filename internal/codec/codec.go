// Package codec defines the contract between the transport core and a
// compression engine, plus a registry of engines selectable by name.
package codec

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/vizor/internal/core"
)

// Encoder compresses raw frames. An engine may buffer internally and return
// zero, one or several payloads per call; Flush drains whatever is buffered.
type Encoder interface {
	Encode(frame core.RawFrame) ([][]byte, error)
	Flush() ([][]byte, error)
	Close() error
}

// Decoder decompresses one complete payload into zero or more pictures.
type Decoder interface {
	Decode(payload []byte) ([]core.Planes, error)
	Close() error
}

// Options are engine-specific settings as read from configuration.
type Options map[string]any

// Factory builds the two halves of an engine.
type Factory struct {
	NewEncoder func(opts Options) (Encoder, error)
	NewDecoder func(opts Options) (Decoder, error)
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes an engine available under name. Registering a name twice
// replaces the earlier factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// Names lists the registered engines.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[name]
	if !ok {
		return Factory{}, fmt.Errorf("%q: %w", name, core.ErrUnknownCodec)
	}
	return f, nil
}

// NewEncoder builds the encoder of engine name.
func NewEncoder(name string, opts Options) (Encoder, error) {
	f, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if f.NewEncoder == nil {
		return nil, fmt.Errorf("%q has no encoder: %w", name, core.ErrUnknownCodec)
	}
	return f.NewEncoder(opts)
}

// NewDecoder builds the decoder of engine name.
func NewDecoder(name string, opts Options) (Decoder, error) {
	f, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if f.NewDecoder == nil {
		return nil, fmt.Errorf("%q has no decoder: %w", name, core.ErrUnknownCodec)
	}
	return f.NewDecoder(opts)
}

// DecodeOptions fills out from opts. Unknown keys are rejected and values are
// weakly typed, so "2" and 2 both decode into an int field.
func DecodeOptions(opts Options, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(opts)); err != nil {
		return fmt.Errorf("codec options: %w: %w", core.ErrConfigInvalid, err)
	}
	return nil
}
