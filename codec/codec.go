// Package codec holds the encodings steparena persists.
//
// Document codecs ([Codec]) serialize scalar documents and archive
// manifests. Element codecs ([Element]) give typed arena views a fixed-width
// layout inside area memory. Work segments and scalar documents written under
// one encoding do not decode under another, so changing either breaks stored
// computations.
package codec

// Codec turns scalar documents into bytes and back. Implementations are safe
// for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Name is recorded next to every document so a reader can pick the
	// codec that wrote it.
	Name() string
}

// Default writes new scalar documents and archive manifests.
var Default Codec = GoJSON{}

var registry = map[string]Codec{
	GoJSON{}.Name(): GoJSON{},
	JSON{}.Name():   JSON{},
}

// Lookup resolves a codec name recorded in a document.
func Lookup(name string) (Codec, bool) {
	c, ok := registry[name]
	return c, ok
}

// Names lists the registered document codecs.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}
