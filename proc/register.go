package proc

import (
	"github.com/randalmurphal/runtimekit/runtime"
)

// Register discovers every runtime manifest in dir and adds an adapter per
// manifest to the registry, in lexical manifest order. A malformed manifest
// or duplicate runtime id fails the whole registration.
func Register(reg *runtime.Registry, dir string, opts ...Option) error {
	manifests, err := Discover(dir)
	if err != nil {
		return err
	}

	for _, m := range manifests {
		a, err := New(m, opts...)
		if err != nil {
			return err
		}
		if err := reg.Add(a); err != nil {
			return err
		}
	}
	return nil
}
