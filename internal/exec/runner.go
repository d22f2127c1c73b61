// Package exec runs untrusted submitted code in isolation, one invocation
// per test case, and classifies failures as compile, runtime or timeout.
package exec

import (
	"context"
	"sort"
	"sync"

	"github.com/paulgasbarra/together-we-code/internal/models"
)

// Runner executes one test invocation: load the candidate code, call
// functionName with the argument values in declared order, and return the
// single trimmed line the function's return value was printed as.
type Runner interface {
	Run(ctx context.Context, code, functionName string, args []models.Arg) (string, error)
}

// Registry maps language names to runners. The dispatcher resolves languages
// through it instead of switching on strings, so adding a language never
// touches the dispatch path.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

func (r *Registry) Register(language string, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[language] = runner
}

func (r *Registry) Lookup(language string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[language]
	return runner, ok
}

// Names returns the supported language set, sorted for stable output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry registers every built-in language runner with shared limits.
func DefaultRegistry(limits Limits) *Registry {
	r := NewRegistry()
	r.Register(LangJavaScript, NewSandboxRunner(javascriptProfile, limits))
	r.Register(LangPython, NewSandboxRunner(pythonProfile, limits))
	return r
}
