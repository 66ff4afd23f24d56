package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nftswap/internal/model"
)

// Store provides Postgres persistence for trades and pool snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertTrades appends executed trades.
func (s *Store) InsertTrades(ctx context.Context, trades []model.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, trade := range trades {
		batch.Queue(`
			INSERT INTO trades (
				pool_id, side, caller, num_items, identifiers,
				spot_before, spot_after, total_amount,
				trade_fee, protocol_fee, royalty_total, executed_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		`,
			trade.PoolID,
			trade.Side,
			trade.Caller,
			int64(trade.NumItems),
			trade.Identifiers,
			trade.SpotBefore,
			trade.SpotAfter,
			trade.TotalAmount,
			trade.TradeFee,
			trade.ProtocolFee,
			trade.RoyaltyTotal,
			trade.ExecutedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range trades {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertSnapshot stores the latest pool state.
func (s *Store) UpsertSnapshot(ctx context.Context, snap model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_snapshots (
			pool_id, spot_price, delta, props, state,
			token_balance, held_identifiers, paused, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (pool_id)
		DO UPDATE SET
			spot_price = EXCLUDED.spot_price,
			delta = EXCLUDED.delta,
			props = EXCLUDED.props,
			state = EXCLUDED.state,
			token_balance = EXCLUDED.token_balance,
			held_identifiers = EXCLUDED.held_identifiers,
			paused = EXCLUDED.paused,
			updated_at = now()
	`,
		snap.PoolID,
		snap.SpotPrice,
		snap.Delta,
		snap.Props,
		snap.State,
		snap.TokenBalance,
		snap.HeldIdentifiers,
		snap.Paused,
	)
	return err
}

// PutTradeBatch implements storage.Recorder.
func (s *Store) PutTradeBatch(trades []model.TradeRecord) error {
	return s.InsertTrades(context.Background(), trades)
}
