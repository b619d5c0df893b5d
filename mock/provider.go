// Package mock provides test doubles for chatbox interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/chatbox"
)

// Interface compliance check.
var _ chatbox.Provider = (*Provider)(nil)

// Provider is a test double for chatbox.Provider.
// Set StreamFn before calling Stream. IDFn and CapabilitiesFn are nil-safe
// (zero value) because most tests never inspect them.
type Provider struct {
	IDFn           func() chatbox.ProviderID
	CapabilitiesFn func(model string) chatbox.Capabilities
	ListModelsFn   func(ctx context.Context) ([]string, error)
	UploadFileFn   func(ctx context.Context, f chatbox.File) (string, error)
	StreamFn       func(ctx context.Context, req chatbox.Request) (chatbox.Stream, error)
}

// ID delegates to IDFn. Returns an empty ID when IDFn is nil.
func (p *Provider) ID() chatbox.ProviderID {
	if p.IDFn == nil {
		return ""
	}
	return p.IDFn()
}

// Capabilities delegates to CapabilitiesFn. Returns zero capabilities when
// CapabilitiesFn is nil.
func (p *Provider) Capabilities(model string) chatbox.Capabilities {
	if p.CapabilitiesFn == nil {
		return chatbox.Capabilities{}
	}
	return p.CapabilitiesFn(model)
}

// ListModels delegates to ListModelsFn.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	return p.ListModelsFn(ctx)
}

// UploadFile delegates to UploadFileFn.
func (p *Provider) UploadFile(ctx context.Context, f chatbox.File) (string, error) {
	return p.UploadFileFn(ctx, f)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req chatbox.Request) (chatbox.Stream, error) {
	return p.StreamFn(ctx, req)
}
