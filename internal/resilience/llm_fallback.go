package resilience

import (
	"context"

	"github.com/MrWong99/cockpit/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with failover across several
// backends, each behind its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional backend.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the primary's capabilities. Capabilities are static
// metadata and do not take part in failover.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.group.Primary().Capabilities()
}

// Available reports whether any backend's breaker is not open.
func (f *LLMFallback) Available() bool {
	return f.group.Available()
}

// Status returns per-backend breaker states.
func (f *LLMFallback) Status() []EntryStatus {
	return f.group.Status()
}
