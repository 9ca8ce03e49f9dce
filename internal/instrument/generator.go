package instrument

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"optionscore/internal/config"
	"optionscore/internal/core"
)

// AssetConfig bundles one asset's underlying/contract metadata with
// its strike-grid parameters, supplementing what config.StrikeGridConfig
// carries (contract size, tick size, settlement currency aren't part
// of the generation-tuning surface in spec.md §6.4, but the generator
// needs them to build Instrument records).
type AssetConfig struct {
	Grid               config.StrikeGridConfig
	ContractSize       decimal.Decimal
	TickSize           decimal.Decimal
	PriceDecimals      int32
	MinOrderSize       decimal.Decimal
	SettlementCurrency string
}

// Generator runs the instrument-generation cycle: expiry expansion,
// strike displacement, instrument creation, and active-range
// reconciliation (spec.md §4.5).
type Generator struct {
	instruments core.InstrumentStore
	states      core.GenerationStateStore
}

// NewGenerator builds a Generator over the given stores.
func NewGenerator(instruments core.InstrumentStore, states core.GenerationStateStore) *Generator {
	return &Generator{instruments: instruments, states: states}
}

// RunCycle executes one full generation cycle for asset in env: loads
// or initializes displacement state, runs Cycle against spot, creates
// any newly-active instruments across the expanded expiry schedule,
// persists state, and reconciles the store's active range. Idempotent
// per spec.md §4.5 — safe to call repeatedly with the same spot.
func (g *Generator) RunCycle(ctx context.Context, env core.Environment, asset AssetConfig, spot decimal.Decimal, expiries config.ExpirySchedule, asOf time.Time) error {
	state, err := g.states.GetGenerationState(ctx, env, asset.Grid.Asset)
	if err != nil {
		return err
	}
	if state == nil {
		initial := InitialState(env, asset.Grid.Asset, asset.Grid, spot)
		state = &initial
	}

	result := Cycle(*state, spot, asset.Grid)
	*state = result.State

	if len(result.NewStrikes) > 0 {
		expiryTimes, err := ExpandSchedule(expiries, asOf)
		if err != nil {
			return err
		}
		instruments := g.buildInstruments(env, asset, result.NewStrikes, expiryTimes)
		if len(instruments) > 0 {
			if err := g.instruments.SaveBatch(ctx, env, instruments); err != nil {
				return err
			}
		}
	}

	if err := g.states.SaveGenerationState(ctx, env, state); err != nil {
		return err
	}

	minStrike, maxStrike := ActiveRange(*state)
	if err := g.instruments.UpdateActiveRange(ctx, env, asset.Grid.Asset, minStrike, maxStrike); err != nil {
		return err
	}

	if _, err := g.instruments.MarkExpiredByTime(ctx, env, asOf); err != nil {
		return err
	}
	return nil
}

func (g *Generator) buildInstruments(env core.Environment, asset AssetConfig, strikes []decimal.Decimal, expiries []time.Time) []*core.Instrument {
	underlying := core.Underlying{
		Symbol:        asset.Grid.Asset,
		ContractSize:  asset.ContractSize,
		TickSize:      asset.TickSize,
		PriceDecimals: asset.PriceDecimals,
	}

	var out []*core.Instrument
	for _, expiry := range expiries {
		for _, strike := range strikes {
			for _, optType := range []core.OptionType{core.Call, core.Put} {
				out = append(out, &core.Instrument{
					ID:                 core.NewID(),
					Env:                env,
					Symbol:             Symbol(asset.Grid.Asset, expiry, strike, optType == core.Call),
					Underlying:         underlying,
					OptionType:         optType,
					ExerciseStyle:      core.ExerciseEuropean,
					Strike:             core.Strike{Value: strike, Decimals: asset.PriceDecimals},
					Expiry:             expiry,
					SettlementCurrency: asset.SettlementCurrency,
					MinOrderSize:       asset.MinOrderSize,
					Status:             core.InstrumentActive,
				})
			}
		}
	}
	return out
}
