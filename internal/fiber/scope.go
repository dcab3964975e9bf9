package fiber

// Scope is a chained environment of named values. A child fiber's scope
// extends its parent's: lookups fall back to the parent frame for keys that
// are not bound locally.
//
// Thread-safety: Scope is NOT safe for concurrent use.
type Scope struct {
	parent *Scope
	vars   map[string]any
}

// NewScope creates a frame extending parent (which may be nil).
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent}
}

// Parent returns the enclosing frame, or nil.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Lookup returns the value bound to key in the nearest frame that has it.
func (s *Scope) Lookup(key string) (any, bool) {
	for frame := s; frame != nil; frame = frame.parent {
		if v, ok := frame.vars[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// Get is like Lookup but returns nil for unbound keys.
func (s *Scope) Get(key string) any {
	v, _ := s.Lookup(key)
	return v
}

// Set writes to the frame that already binds key, or to this frame when no
// frame does.
func (s *Scope) Set(key string, v any) {
	for frame := s; frame != nil; frame = frame.parent {
		if _, ok := frame.vars[key]; ok {
			frame.vars[key] = v
			return
		}
	}
	s.Define(key, v)
}

// Define binds key in this frame, shadowing any outer binding.
func (s *Scope) Define(key string, v any) {
	if s.vars == nil {
		s.vars = make(map[string]any)
	}
	s.vars[key] = v
}

// Has reports whether key is bound in this frame (not counting parents).
func (s *Scope) Has(key string) bool {
	_, ok := s.vars[key]
	return ok
}
