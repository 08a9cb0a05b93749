// Package classes holds the fixed, ordered set of class names a model was
// trained on.
package classes

import (
	"errors"
	"fmt"
)

// Reference is the cover (unmodified image) class. It always sits at index 0.
const Reference = "Normal"

var alaska2 = []string{
	Reference,
	"JMiPOD_75", "JMiPOD_90", "JMiPOD_95",
	"JUNIWARD_75", "JUNIWARD_90", "JUNIWARD_95",
	"UERD_75", "UERD_90", "UERD_95",
}

// Set maps class names to indices in [0, Len()). It is immutable once built.
type Set struct {
	names []string
	index map[string]int
}

// Default returns the ten ALASKA2 classes.
func Default() *Set {
	s, _ := New(alaska2)
	return s
}

func New(names []string) (*Set, error) {
	if len(names) == 0 {
		return nil, errors.New("class set cannot be empty")
	}
	s := &Set{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("class %d has an empty name", i)
		}
		if _, exists := s.index[name]; exists {
			return nil, fmt.Errorf("duplicate class name %q", name)
		}
		s.names[i] = name
		s.index[name] = i
	}
	return s, nil
}

func (s *Set) Len() int {
	return len(s.names)
}

// Index returns the integer id of name.
func (s *Set) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Name returns the class name at i, or "" when i is out of range.
func (s *Set) Name(i int) string {
	if i < 0 || i >= len(s.names) {
		return ""
	}
	return s.names[i]
}

func (s *Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Set) Contains(i int) bool {
	return i >= 0 && i < len(s.names)
}

// OneHot returns a vector of length Len() with a single 1 at position i.
func (s *Set) OneHot(i int) ([]float32, error) {
	if !s.Contains(i) {
		return nil, fmt.Errorf("label %d out of range [0, %d)", i, len(s.names))
	}
	v := make([]float32, len(s.names))
	v[i] = 1
	return v, nil
}
