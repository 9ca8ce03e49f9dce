package risk

import (
	"context"

	"optionscore/internal/core"
)

// StoreResolver adapts a core.InstrumentStore into an InstrumentResolver,
// as the package doc on InstrumentResolver anticipates.
type StoreResolver struct {
	instruments core.InstrumentStore
}

// NewStoreResolver wraps store as an InstrumentResolver.
func NewStoreResolver(store core.InstrumentStore) *StoreResolver {
	return &StoreResolver{instruments: store}
}

// Resolve looks up instrument_id in the given environment and narrows
// it to the fields the margin model needs.
func (r *StoreResolver) Resolve(ctx context.Context, env core.Environment, instrumentID string) (InstrumentInfo, bool) {
	inst, err := r.instruments.GetInstrument(ctx, env, instrumentID)
	if err != nil || inst == nil {
		return InstrumentInfo{}, false
	}
	return InstrumentInfo{
		UnderlyingSymbol: inst.Underlying.Symbol,
		ContractSize:     inst.Underlying.ContractSize,
		OptionType:       inst.OptionType,
		Strike:           inst.Strike.Value,
	}, true
}
