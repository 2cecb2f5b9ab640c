package ratelimit

import (
	"context"

	"cryptocycles/internal/provider"
)

// Provider wraps a provider.Provider and gates every upstream call
// through a Policy.
type Provider struct {
	P      provider.Provider
	Policy Policy
}

func (p *Provider) Name() string { return p.P.Name() }

func (p *Provider) Assets(ctx context.Context) ([]provider.Asset, error) {
	if p.Policy != nil {
		if err := p.Policy.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return p.P.Assets(ctx)
}

func (p *Provider) Prices(ctx context.Context, ids []string) (map[string]provider.Price, error) {
	if p.Policy != nil {
		if err := p.Policy.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return p.P.Prices(ctx, ids)
}
