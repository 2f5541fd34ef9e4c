// Package codec maps EPP XML documents to typed values. Object mappings and
// extensions register a factory per namespace; decoding dispatches on the
// namespace of each element, encoding is plain encoding/xml over the
// component structs.
package codec

import (
	"encoding/xml"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/eppkit/internal/protocol"
)

var (
	ErrUnsupportedNamespace = fmt.Errorf("%w: unsupported namespace", protocol.ErrCodec)
	ErrUnsupportedExtension = fmt.Errorf("%w: extension", ErrUnsupportedNamespace)
	ErrUnsupportedElement   = fmt.Errorf("%w: unsupported element", protocol.ErrCodec)
	ErrTypeMismatch         = fmt.Errorf("%w: type mismatch", protocol.ErrCodec)
)

// MappingFactory decodes the elements of one object-mapping namespace.
// Implementations must consume the element they are handed, typically with
// d.DecodeElement(v, &start).
type MappingFactory interface {
	DecodeCommand(verb Verb, d *xml.Decoder, start xml.StartElement) (Component, error)
	DecodeResponse(d *xml.Decoder, start xml.StartElement) (Component, error)
}

// ExtensionFactory decodes the elements of one extension namespace.
type ExtensionFactory interface {
	DecodeExtension(d *xml.Decoder, start xml.StartElement) (Component, error)
}

// Registry binds namespaces to factories. Reads vastly outnumber writes;
// registration normally happens once at startup.
type Registry struct {
	mu         sync.RWMutex
	mappings   map[string]MappingFactory
	extensions map[string]ExtensionFactory
}

func NewRegistry() *Registry {
	return &Registry{
		mappings:   make(map[string]MappingFactory),
		extensions: make(map[string]ExtensionFactory),
	}
}

// RegisterMapping binds ns to f. Registering the same factory again is a
// no-op; a different factory for a bound namespace is a configuration error.
func (r *Registry) RegisterMapping(ns string, f MappingFactory) error {
	ns = strings.TrimSpace(ns)
	if ns == "" || f == nil {
		return fmt.Errorf("%w: mapping namespace and factory required", protocol.ErrCodecConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.mappings[ns]; ok {
		if sameFactory(existing, f) {
			return nil
		}
		return fmt.Errorf("%w: mapping %q already registered", protocol.ErrCodecConfig, ns)
	}
	r.mappings[ns] = f
	return nil
}

func (r *Registry) RegisterExtension(ns string, f ExtensionFactory) error {
	ns = strings.TrimSpace(ns)
	if ns == "" || f == nil {
		return fmt.Errorf("%w: extension namespace and factory required", protocol.ErrCodecConfig)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.extensions[ns]; ok {
		if sameFactory(existing, f) {
			return nil
		}
		return fmt.Errorf("%w: extension %q already registered", protocol.ErrCodecConfig, ns)
	}
	r.extensions[ns] = f
	return nil
}

func (r *Registry) Mapping(ns string) (MappingFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.mappings[ns]
	return f, ok
}

func (r *Registry) Extension(ns string) (ExtensionFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.extensions[ns]
	return f, ok
}

// Mappings lists registered object namespaces, sorted.
func (r *Registry) Mappings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.mappings)
}

// Extensions lists registered extension namespaces, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.extensions)
}

func sameFactory(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Elements maps an element local name to a constructor for its Go type.
type Elements map[string]func() Component

func (e Elements) decode(d *xml.Decoder, start xml.StartElement) (Component, error) {
	ctor, ok := e[start.Name.Local]
	if !ok {
		return nil, fmt.Errorf("%w: {%s}%s", ErrUnsupportedElement, start.Name.Space, start.Name.Local)
	}
	v := ctor()
	if err := d.DecodeElement(v, &start); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", protocol.ErrCodec, start.Name.Local, err)
	}
	return v, nil
}

// ElementMapping is a table-driven MappingFactory. Commands are keyed by
// verb, then by payload element name; responses by resData element name.
type ElementMapping struct {
	Commands  map[Verb]Elements
	Responses Elements
}

func (m *ElementMapping) DecodeCommand(verb Verb, d *xml.Decoder, start xml.StartElement) (Component, error) {
	elems, ok := m.Commands[verb]
	if !ok {
		return nil, fmt.Errorf("%w: verb %s in {%s}", ErrUnsupportedElement, verb, start.Name.Space)
	}
	return elems.decode(d, start)
}

func (m *ElementMapping) DecodeResponse(d *xml.Decoder, start xml.StartElement) (Component, error) {
	return m.Responses.decode(d, start)
}

// ElementExtension is a table-driven ExtensionFactory.
type ElementExtension struct {
	Elements Elements
}

func (x *ElementExtension) DecodeExtension(d *xml.Decoder, start xml.StartElement) (Component, error) {
	return x.Elements.decode(d, start)
}
