// Package persist is the persistent-configuration store: named blocks
// registered by their owners, serialized as a CBOR map. A block's owner
// gets a callback after any mutation so it can re-apply derived
// quantities.
package persist

import (
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Registry holds the registered blocks. Register happens at startup from
// a single goroutine; Load, Save and Mutate may be called concurrently
// afterwards.
type Registry struct {
	mu     sync.Mutex
	blocks map[string]*block

	// Blocks present in storage but not registered are carried through
	// Save untouched, so an older build does not strip a newer one's
	// state.
	unknown map[string]cbor.RawMessage
}

type block struct {
	value    any
	onUpdate func()
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		blocks:  make(map[string]*block),
		unknown: make(map[string]cbor.RawMessage),
	}
}

// Register adds a named block. value must be a pointer; onUpdate may be
// nil. Registering the same name twice is a programmer error.
func (r *Registry) Register(name string, value any, onUpdate func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[name]; ok {
		panic("persist: block " + name + " already registered")
	}
	r.blocks[name] = &block{value: value, onUpdate: onUpdate}
}

// Load decodes a CBOR block map from rd. Registered blocks are decoded in
// place and their callbacks fired; unregistered blocks are retained for
// the next Save.
func (r *Registry) Load(rd io.Reader) error {
	var raw map[string]cbor.RawMessage
	if err := cbor.NewDecoder(rd).Decode(&raw); err != nil {
		return fmt.Errorf("persist: decode: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, msg := range raw {
		blk, ok := r.blocks[name]
		if !ok {
			r.unknown[name] = msg
			continue
		}
		if err := cbor.Unmarshal(msg, blk.value); err != nil {
			return fmt.Errorf("persist: block %q: %w", name, err)
		}
		if blk.onUpdate != nil {
			blk.onUpdate()
		}
	}
	return nil
}

// Save writes all blocks, registered and carried-through, as one CBOR
// map.
func (r *Registry) Save(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]cbor.RawMessage, len(r.blocks)+len(r.unknown))
	for name, blk := range r.blocks {
		data, err := cbor.Marshal(blk.value)
		if err != nil {
			return fmt.Errorf("persist: block %q: %w", name, err)
		}
		out[name] = data
	}
	for name, msg := range r.unknown {
		out[name] = msg
	}

	if err := cbor.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("persist: encode: %w", err)
	}
	return nil
}

// Mutate applies fn to a registered block's value and then fires the
// block's callback. This is the one sanctioned way to change a block
// outside of Load.
func (r *Registry) Mutate(name string, fn func(value any)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	blk, ok := r.blocks[name]
	if !ok {
		return fmt.Errorf("persist: no block %q", name)
	}

	fn(blk.value)
	if blk.onUpdate != nil {
		blk.onUpdate()
	}
	return nil
}
