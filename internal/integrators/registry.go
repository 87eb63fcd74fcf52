package integrators

import (
	"fmt"
	"sort"
	"strings"

	"github.com/san-kum/drop/internal/dynamo"
)

var registry = map[string]func() dynamo.Integrator{
	"rk4":   func() dynamo.Integrator { return NewRK4() },
	"euler": func() dynamo.Integrator { return NewEuler() },
}

// Get returns a fresh integrator for the given ODE method name.
// Names are case-insensitive.
func Get(name string) (dynamo.Integrator, error) {
	fn, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %s)", dynamo.ErrUnknownIntegrator, name, strings.Join(Names(), ", "))
	}
	return fn(), nil
}

// Names lists the registered ODE methods in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
