package idgen

import "github.com/google/uuid"

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// Short returns the first block of a new identifier; boot banners and dump
// headers use it where a full UUID is too noisy.
func Short() string {
	id := New()
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}
