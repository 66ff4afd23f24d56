package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftswap/internal/allowlist"
	"nftswap/internal/chain"
	"nftswap/internal/config"
	"nftswap/internal/inventory"
	"nftswap/internal/pool"
	"nftswap/internal/storage"
	"nftswap/internal/storage/postgres"
	"nftswap/internal/wad"
)

// simAgent pretends to move assets; the simulator has no real custody.
type simAgent struct{}

func (simAgent) TokenIn(context.Context, common.Address, *uint256.Int) error    { return nil }
func (simAgent) TokenOut(context.Context, common.Address, *uint256.Int) error   { return nil }
func (simAgent) ItemsIn(context.Context, common.Address, []*uint256.Int) error  { return nil }
func (simAgent) ItemsOut(context.Context, common.Address, []*uint256.Int) error { return nil }

const simInventorySize = 50

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strategy, err := curveFor(cfg.CurveType)
	if err != nil {
		return err
	}
	poolType, err := poolTypeFor(cfg.PoolType)
	if err != nil {
		return err
	}
	state, fees, err := pricingFrom(cfg)
	if err != nil {
		return err
	}

	var recorder storage.Recorder = storage.NewJsonlRecorder(cfg.Out)
	var store *postgres.Store
	if cfg.PGDSN != "" {
		store, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		recorder = store
	}

	// A royalty fee needs an on-chain resolver to route payouts.
	var royalties pool.RoyaltyResolver
	if fees.RoyaltyNumerator != nil && !fees.RoyaltyNumerator.IsZero() {
		if cfg.RPCURL == "" || cfg.Collection == "" {
			return fmt.Errorf("royalty fee requires rpc and collection")
		}
		client, err := chain.NewClient(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("connect rpc: %w", err)
		}
		defer client.Close()
		chainID, err := client.GetChainID(ctx)
		if err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
		logger.Info("connected to chain",
			zap.String("chain_id", chainID.String()),
			zap.String("collection", cfg.Collection),
		)
		royalties = chain.NewRoyaltyResolver(client,
			common.HexToAddress(cfg.Collection), cfg.MaxRetries, cfg.RetryBackoff)
	}

	// The committed set comes from config when given; otherwise a small
	// sequential collection keeps the simulation self-contained.
	var ids []*uint256.Int
	if len(cfg.AllowlistIDs) > 0 {
		ids, err = parseIdentifiers(cfg.AllowlistIDs)
		if err != nil {
			return err
		}
	} else {
		ids = make([]*uint256.Int, simInventorySize)
		for i := range ids {
			ids[i] = uint256.NewInt(uint64(i + 1))
		}
	}
	tree, err := allowlist.NewTree(ids)
	if err != nil {
		return err
	}
	ids = tree.Identifiers()

	p, err := pool.New(pool.Config{
		ID:        "sim",
		Type:      poolType,
		Strategy:  strategy,
		State:     state,
		Fees:      fees,
		Inventory: inventory.NewTracker(),
		Allowlist: tree.Commitment(),
		Transfers: simAgent{},
		Royalties: royalties,
		Recorder:  recorder,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	snapshots := pool.NewSnapshotStore(cfg.Snapshot, cfg.SnapshotEnabled)
	trader := pool.Caller{Addr: common.HexToAddress("0x0000000000000000000000000000000000000001")}

	if snap, found, err := snapshots.Load(); err != nil {
		return err
	} else if found {
		if err := p.Restore(ctx, snap); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}
		logger.Info("resumed from snapshot", zap.String("spot", snap.SpotPrice))
	} else {
		// Seed a fresh pool: half the collection plus deep token liquidity.
		liquidity, err := wad.Parse("1000000")
		if err != nil {
			return err
		}
		if err := p.DepositToken(ctx, trader, liquidity); err != nil {
			return err
		}
		half := ids[:(len(ids)+1)/2]
		ordered, proof, err := tree.Prove(half)
		if err != nil {
			return err
		}
		if err := p.DepositItems(ctx, trader, ordered, proof); err != nil {
			return err
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	logger.Info("simulation start",
		zap.String("curve", cfg.CurveType),
		zap.String("pool_type", cfg.PoolType),
		zap.Int("trades", cfg.Trades),
		zap.Int64("seed", seed),
		zap.String("out", cfg.Out),
	)

	var executed, skipped int
	for i := 0; i < cfg.Trades; i++ {
		select {
		case <-ctx.Done():
			logger.Info("simulation interrupted")
			return snapshotAndClose(ctx, p, snapshots, store)
		default:
		}

		count := uint64(rng.Intn(3) + 1)
		if rng.Intn(2) == 0 {
			if _, err := p.ExecuteBuyFromPool(ctx, trader, count, nil, nil); err != nil {
				logger.Debug("buy skipped", zap.Uint64("items", count), zap.Error(err))
				skipped++
				continue
			}
		} else {
			held, err := p.GetAllHeldIdentifiers(ctx)
			if err != nil {
				return err
			}
			subset := pickAbsent(ids, held, count)
			if len(subset) == 0 {
				skipped++
				continue
			}
			ordered, proof, err := tree.Prove(subset)
			if err != nil {
				return err
			}
			if _, err := p.ExecuteSellToPool(ctx, trader, ordered, proof, nil); err != nil {
				logger.Debug("sell skipped", zap.Uint64("items", count), zap.Error(err))
				skipped++
				continue
			}
		}
		executed++
	}

	logger.Info("simulation done",
		zap.Int("executed", executed),
		zap.Int("skipped", skipped),
		zap.String("spot", wad.Format(p.CurrentPricingState().SpotPrice)),
		zap.String("liquidity", wad.Format(p.Liquidity())),
	)

	return snapshotAndClose(ctx, p, snapshots, store)
}

// pickAbsent selects up to count identifiers the pool does not currently
// hold, so a sell can move them in.
func pickAbsent(all, held []*uint256.Int, count uint64) []*uint256.Int {
	heldSet := make(map[[32]byte]struct{}, len(held))
	for _, id := range held {
		heldSet[id.Bytes32()] = struct{}{}
	}
	out := make([]*uint256.Int, 0, count)
	for _, id := range all {
		if uint64(len(out)) == count {
			break
		}
		if _, ok := heldSet[id.Bytes32()]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func snapshotAndClose(ctx context.Context, p *pool.Pool, snapshots *pool.SnapshotStore, store *postgres.Store) error {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.UpsertSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}
	}
	return snapshots.Save(snap)
}
