package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"optionscore/internal/apperrors"
	"optionscore/internal/core"
)

// schema is applied on open for the embedded/local deployment case.
// A managed environment runs this same DDL via its own migration
// tool instead; NewSQLiteStore applying it itself is a convenience,
// not a substitute for migration tooling in production.
const schema = `
CREATE TABLE IF NOT EXISTS orders (
	env TEXT NOT NULL,
	order_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	instrument_id TEXT NOT NULL,
	client_order_id TEXT NOT NULL DEFAULT '',
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	time_in_force TEXT NOT NULL,
	price TEXT NOT NULL,
	quantity TEXT NOT NULL,
	filled_quantity TEXT NOT NULL,
	avg_fill_price TEXT NOT NULL,
	status TEXT NOT NULL,
	risk_approved_at TEXT,
	risk_rejection_reason TEXT NOT NULL DEFAULT '',
	required_margin TEXT NOT NULL,
	margin_lock_id TEXT NOT NULL DEFAULT '',
	sequence INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (env, order_id)
);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(env, user_id);
CREATE INDEX IF NOT EXISTS idx_orders_instrument ON orders(env, instrument_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_client ON orders(env, user_id, client_order_id)
	WHERE client_order_id != '';

CREATE TABLE IF NOT EXISTS fills (
	env TEXT NOT NULL,
	fill_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	counterparty_order_id TEXT NOT NULL DEFAULT '',
	fee TEXT NOT NULL,
	fee_currency TEXT NOT NULL DEFAULT '',
	is_maker INTEGER NOT NULL,
	executed_at TEXT NOT NULL,
	PRIMARY KEY (env, fill_id)
);
CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(env, order_id);

CREATE TABLE IF NOT EXISTS instruments (
	env TEXT NOT NULL,
	id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	underlying_symbol TEXT NOT NULL,
	contract_size TEXT NOT NULL,
	tick_size TEXT NOT NULL,
	price_decimals INTEGER NOT NULL,
	option_type TEXT NOT NULL,
	exercise_style TEXT NOT NULL,
	strike_value TEXT NOT NULL,
	strike_decimals INTEGER NOT NULL,
	expiry TEXT NOT NULL,
	settlement_currency TEXT NOT NULL,
	min_order_size TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (env, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_instruments_symbol ON instruments(env, symbol);
CREATE INDEX IF NOT EXISTS idx_instruments_underlying ON instruments(env, underlying_symbol);

CREATE TABLE IF NOT EXISTS generation_state (
	env TEXT NOT NULL,
	asset TEXT NOT NULL,
	upper_reference TEXT NOT NULL,
	lower_reference TEXT NOT NULL,
	upper_trigger TEXT NOT NULL,
	lower_trigger TEXT NOT NULL,
	max_strike TEXT NOT NULL,
	min_strike TEXT NOT NULL,
	last_spot_price TEXT NOT NULL,
	PRIMARY KEY (env, asset)
);
`

// SQLiteStore implements OrderStore, InstrumentStore, and
// GenerationStateStore over a relational schema. Grounded on the
// teacher's store_sqlite.go for connection setup (WAL mode on open,
// schema assumed externally migrated in production); departs from its
// single-JSON-blob-plus-checksum shape because the exchange-core store
// interfaces need real filtering and listing (by user, by instrument,
// by underlying) that a single opaque blob cannot serve.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath, enables WAL mode, and applies the
// embedded schema (idempotent via CREATE TABLE IF NOT EXISTS).
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// CreateOrder inserts order's row.
func (s *SQLiteStore) CreateOrder(ctx context.Context, env core.Environment, order *core.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (env, order_id, user_id, instrument_id, client_order_id, side, order_type,
			time_in_force, price, quantity, filled_quantity, avg_fill_price, status, risk_approved_at,
			risk_rejection_reason, required_margin, margin_lock_id, sequence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env, order.OrderID, order.UserID, order.InstrumentID, order.ClientOrderID, order.Side,
		order.OrderType, order.TimeInForce, order.Price.String(), order.Quantity.String(),
		order.FilledQuantity.String(), order.AvgFillPrice.String(), order.Status,
		nullableTime(order.RiskApprovedAt), order.RiskRejectionReason, order.RequiredMargin.String(),
		order.MarginLockID, order.Sequence, order.CreatedAt.UTC().Format(time.RFC3339Nano),
		order.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrder overwrites an existing order row by primary key.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, env core.Environment, order *core.Order) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET user_id=?, instrument_id=?, client_order_id=?, side=?, order_type=?,
			time_in_force=?, price=?, quantity=?, filled_quantity=?, avg_fill_price=?, status=?,
			risk_approved_at=?, risk_rejection_reason=?, required_margin=?, margin_lock_id=?,
			sequence=?, updated_at=?
		WHERE env=? AND order_id=?`,
		order.UserID, order.InstrumentID, order.ClientOrderID, order.Side, order.OrderType,
		order.TimeInForce, order.Price.String(), order.Quantity.String(), order.FilledQuantity.String(),
		order.AvgFillPrice.String(), order.Status, nullableTime(order.RiskApprovedAt),
		order.RiskRejectionReason, order.RequiredMargin.String(), order.MarginLockID, order.Sequence,
		order.UpdatedAt.UTC().Format(time.RFC3339Nano), env, order.OrderID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("order %s not found", order.OrderID)
	}
	return nil
}

func scanOrder(row interface {
	Scan(dest ...interface{}) error
}) (*core.Order, error) {
	var o core.Order
	var price, qty, filledQty, avgFill, requiredMargin string
	var riskApprovedAt sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&o.Env, &o.OrderID, &o.UserID, &o.InstrumentID, &o.ClientOrderID, &o.Side,
		&o.OrderType, &o.TimeInForce, &price, &qty, &filledQty, &avgFill, &o.Status, &riskApprovedAt,
		&o.RiskRejectionReason, &requiredMargin, &o.MarginLockID, &o.Sequence, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	o.Price = parseDecimal(price)
	o.Quantity = parseDecimal(qty)
	o.FilledQuantity = parseDecimal(filledQty)
	o.AvgFillPrice = parseDecimal(avgFill)
	o.RequiredMargin = parseDecimal(requiredMargin)
	if o.RiskApprovedAt, err = parseNullableTime(riskApprovedAt); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

const orderColumns = `env, order_id, user_id, instrument_id, client_order_id, side, order_type,
	time_in_force, price, quantity, filled_quantity, avg_fill_price, status, risk_approved_at,
	risk_rejection_reason, required_margin, margin_lock_id, sequence, created_at, updated_at`

// GetOrder returns order_id's record, or NotFound.
func (s *SQLiteStore) GetOrder(ctx context.Context, env core.Environment, orderID string) (*core.Order, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE env=? AND order_id=?", env, orderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("order %s not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrderByClientID resolves a user's client_order_id to its order.
func (s *SQLiteStore) GetOrderByClientID(ctx context.Context, env core.Environment, userID, clientOrderID string) (*core.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE env=? AND user_id=? AND client_order_id=?",
		env, userID, clientOrderID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("client_order_id %s not found for user %s", clientOrderID, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("get order by client id: %w", err)
	}
	return o, nil
}

// ListOrders applies filter, returning results in created_at order.
func (s *SQLiteStore) ListOrders(ctx context.Context, env core.Environment, filter core.OrderFilter) ([]*core.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE env=?"
	args := []interface{}{env}
	if filter.UserID != "" {
		query += " AND user_id=?"
		args = append(args, filter.UserID)
	}
	if filter.InstrumentID != "" {
		query += " AND instrument_id=?"
		args = append(args, filter.InstrumentID)
	}
	if len(filter.Status) > 0 {
		query += " AND status IN (" + placeholders(len(filter.Status)) + ")"
		for _, st := range filter.Status {
			args = append(args, st)
		}
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []*core.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetActiveOrders lists userID's non-terminal orders.
func (s *SQLiteStore) GetActiveOrders(ctx context.Context, env core.Environment, userID string) ([]*core.Order, error) {
	return s.ListOrders(ctx, env, core.OrderFilter{
		UserID: userID,
		Status: []core.OrderStatus{core.OrderPendingRisk, core.OrderOpen, core.OrderPartiallyFilled},
	})
}

func placeholders(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		out += "?"
	}
	return out
}

// CreateFill appends an execution record, tolerating a duplicate
// fill_id (apply_fill's at-least-once delivery guard, spec.md §4.2).
func (s *SQLiteStore) CreateFill(ctx context.Context, env core.Environment, fill *core.Fill) error {
	isMaker := 0
	if fill.IsMaker {
		isMaker = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO fills (env, fill_id, order_id, trade_id, quantity, price,
			counterparty_order_id, fee, fee_currency, is_maker, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env, fill.FillID, fill.OrderID, fill.TradeID, fill.Quantity.String(), fill.Price.String(),
		fill.CounterpartyOrderID, fill.Fee.String(), fill.FeeCurrency, isMaker,
		fill.ExecutedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// GetFills returns every fill recorded against orderID, oldest first.
func (s *SQLiteStore) GetFills(ctx context.Context, env core.Environment, orderID string) ([]*core.Fill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fill_id, order_id, trade_id, quantity, price, counterparty_order_id, fee,
			fee_currency, is_maker, executed_at
		FROM fills WHERE env=? AND order_id=? ORDER BY executed_at ASC`, env, orderID)
	if err != nil {
		return nil, fmt.Errorf("get fills: %w", err)
	}
	defer rows.Close()
	var out []*core.Fill
	for rows.Next() {
		var f core.Fill
		var qty, price, fee, executedAt string
		var isMaker int
		if err := rows.Scan(&f.FillID, &f.OrderID, &f.TradeID, &qty, &price, &f.CounterpartyOrderID,
			&fee, &f.FeeCurrency, &isMaker, &executedAt); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		f.Env = env
		f.Quantity = parseDecimal(qty)
		f.Price = parseDecimal(price)
		f.Fee = parseDecimal(fee)
		f.IsMaker = isMaker != 0
		if f.ExecutedAt, err = time.Parse(time.RFC3339Nano, executedAt); err != nil {
			return nil, fmt.Errorf("parse fill executed_at: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// FillExists reports whether fillID has already been recorded.
func (s *SQLiteStore) FillExists(ctx context.Context, env core.Environment, fillID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM fills WHERE env=? AND fill_id=?", env, fillID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("fill exists: %w", err)
	}
	return count > 0, nil
}

// SaveBatch inserts instruments, ignoring any whose symbol already
// exists (spec.md §4.5's dedup-on-symbol rule).
func (s *SQLiteStore) SaveBatch(ctx context.Context, env core.Environment, instruments []*core.Instrument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin instrument batch: %w", err)
	}
	defer tx.Rollback()
	for _, inst := range instruments {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO instruments (env, id, symbol, underlying_symbol, contract_size,
				tick_size, price_decimals, option_type, exercise_style, strike_value,
				strike_decimals, expiry, settlement_currency, min_order_size, status, created_at,
				updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			env, inst.ID, inst.Symbol, inst.Underlying.Symbol, inst.Underlying.ContractSize.String(),
			inst.Underlying.TickSize.String(), inst.Underlying.PriceDecimals, inst.OptionType,
			inst.ExerciseStyle, inst.Strike.Value.String(), inst.Strike.Decimals,
			inst.Expiry.UTC().Format(time.RFC3339Nano), inst.SettlementCurrency,
			inst.MinOrderSize.String(), inst.Status, inst.CreatedAt.UTC().Format(time.RFC3339Nano),
			inst.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert instrument %s: %w", inst.Symbol, err)
		}
	}
	return tx.Commit()
}

func scanInstrument(row interface {
	Scan(dest ...interface{}) error
}) (*core.Instrument, error) {
	var inst core.Instrument
	var contractSize, tickSize, strikeValue, minOrderSize string
	var expiry, createdAt, updatedAt string
	err := row.Scan(&inst.Env, &inst.ID, &inst.Symbol, &inst.Underlying.Symbol, &contractSize,
		&tickSize, &inst.Underlying.PriceDecimals, &inst.OptionType, &inst.ExerciseStyle,
		&strikeValue, &inst.Strike.Decimals, &expiry, &inst.SettlementCurrency, &minOrderSize,
		&inst.Status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	inst.Underlying.ContractSize = parseDecimal(contractSize)
	inst.Underlying.TickSize = parseDecimal(tickSize)
	inst.Strike.Value = parseDecimal(strikeValue)
	inst.MinOrderSize = parseDecimal(minOrderSize)
	if inst.Expiry, err = time.Parse(time.RFC3339Nano, expiry); err != nil {
		return nil, err
	}
	if inst.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if inst.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}

const instrumentColumns = `env, id, symbol, underlying_symbol, contract_size, tick_size,
	price_decimals, option_type, exercise_style, strike_value, strike_decimals, expiry,
	settlement_currency, min_order_size, status, created_at, updated_at`

// GetInstrument returns instrument id's record.
func (s *SQLiteStore) GetInstrument(ctx context.Context, env core.Environment, id string) (*core.Instrument, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+instrumentColumns+" FROM instruments WHERE env=? AND id=?", env, id)
	inst, err := scanInstrument(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("instrument %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	return inst, nil
}

// GetBySymbol returns the instrument with the given canonical symbol.
func (s *SQLiteStore) GetBySymbol(ctx context.Context, env core.Environment, symbol string) (*core.Instrument, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+instrumentColumns+" FROM instruments WHERE env=? AND symbol=?", env, symbol)
	inst, err := scanInstrument(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("instrument %s not found", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("get instrument by symbol: %w", err)
	}
	return inst, nil
}

// ListByUnderlying returns every instrument for underlying.
func (s *SQLiteStore) ListByUnderlying(ctx context.Context, env core.Environment, underlying string) ([]*core.Instrument, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+instrumentColumns+" FROM instruments WHERE env=? AND underlying_symbol=?", env, underlying)
	if err != nil {
		return nil, fmt.Errorf("list by underlying: %w", err)
	}
	defer rows.Close()
	var out []*core.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpdateActiveRange transitions instruments into/out of Active status
// per spec.md §4.5.
func (s *SQLiteStore) UpdateActiveRange(ctx context.Context, env core.Environment, underlying string, min, max decimal.Decimal) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		UPDATE instruments SET status=?, updated_at=?
		WHERE env=? AND underlying_symbol=? AND status=? AND expiry > ?
			AND CAST(strike_value AS REAL) BETWEEN CAST(? AS REAL) AND CAST(? AS REAL)`,
		core.InstrumentActive, now, env, underlying, core.InstrumentInactive, now, min.String(), max.String())
	if err != nil {
		return fmt.Errorf("activate instruments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE instruments SET status=?, updated_at=?
		WHERE env=? AND underlying_symbol=? AND status=?
			AND (CAST(strike_value AS REAL) < CAST(? AS REAL) OR CAST(strike_value AS REAL) > CAST(? AS REAL))`,
		core.InstrumentInactive, now, env, underlying, core.InstrumentActive, min.String(), max.String())
	if err != nil {
		return fmt.Errorf("deactivate instruments: %w", err)
	}
	return nil
}

// MarkExpiredByTime transitions every instrument whose expiry has
// passed asOf to Expired, returning the count transitioned.
func (s *SQLiteStore) MarkExpiredByTime(ctx context.Context, env core.Environment, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instruments SET status=?, updated_at=?
		WHERE env=? AND status != ? AND expiry <= ?`,
		core.InstrumentExpired, asOf.UTC().Format(time.RFC3339Nano), env, core.InstrumentExpired,
		asOf.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark expired rows affected: %w", err)
	}
	return int(n), nil
}

// UpdateStatus forces an instrument's status, bypassing the
// active-range state machine.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, env core.Environment, id string, status core.InstrumentStatus) error {
	res, err := s.db.ExecContext(ctx, "UPDATE instruments SET status=?, updated_at=? WHERE env=? AND id=?",
		status, time.Now().UTC().Format(time.RFC3339Nano), env, id)
	if err != nil {
		return fmt.Errorf("update instrument status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("instrument %s not found", id)
	}
	return nil
}

// GetGenerationState returns asset's displacement state, or nil if no
// cycle has run yet.
func (s *SQLiteStore) GetGenerationState(ctx context.Context, env core.Environment, asset string) (*core.GenerationState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT env, asset, upper_reference, lower_reference, upper_trigger, lower_trigger,
			max_strike, min_strike, last_spot_price
		FROM generation_state WHERE env=? AND asset=?`, env, asset)
	var st core.GenerationState
	var upperRef, lowerRef, upperTrig, lowerTrig, maxStrike, minStrike, lastSpot string
	err := row.Scan(&st.Env, &st.Asset, &upperRef, &lowerRef, &upperTrig, &lowerTrig, &maxStrike,
		&minStrike, &lastSpot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get generation state: %w", err)
	}
	st.UpperReference = parseDecimal(upperRef)
	st.LowerReference = parseDecimal(lowerRef)
	st.UpperTrigger = parseDecimal(upperTrig)
	st.LowerTrigger = parseDecimal(lowerTrig)
	st.MaxStrike = parseDecimal(maxStrike)
	st.MinStrike = parseDecimal(minStrike)
	st.LastSpotPrice = parseDecimal(lastSpot)
	return &st, nil
}

// SaveGenerationState upserts asset's displacement state.
func (s *SQLiteStore) SaveGenerationState(ctx context.Context, env core.Environment, state *core.GenerationState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_state (env, asset, upper_reference, lower_reference, upper_trigger,
			lower_trigger, max_strike, min_strike, last_spot_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (env, asset) DO UPDATE SET
			upper_reference=excluded.upper_reference, lower_reference=excluded.lower_reference,
			upper_trigger=excluded.upper_trigger, lower_trigger=excluded.lower_trigger,
			max_strike=excluded.max_strike, min_strike=excluded.min_strike,
			last_spot_price=excluded.last_spot_price`,
		env, state.Asset, state.UpperReference.String(), state.LowerReference.String(),
		state.UpperTrigger.String(), state.LowerTrigger.String(), state.MaxStrike.String(),
		state.MinStrike.String(), state.LastSpotPrice.String())
	if err != nil {
		return fmt.Errorf("save generation state: %w", err)
	}
	return nil
}

var (
	_ core.OrderStore           = (*SQLiteStore)(nil)
	_ core.InstrumentStore      = (*SQLiteStore)(nil)
	_ core.GenerationStateStore = (*SQLiteStore)(nil)
)
