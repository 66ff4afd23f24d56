package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const royaltyInfoABIJSON = `[
  {"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}, {"internalType": "uint256", "name": "salePrice", "type": "uint256"}], "name": "royaltyInfo", "outputs": [{"internalType": "address", "name": "", "type": "address"}, {"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	royaltyABI    abi.ABI
	royaltyOnce   sync.Once
	royaltyABIErr error
)

func getRoyaltyABI() (abi.ABI, error) {
	royaltyOnce.Do(func() {
		royaltyABI, royaltyABIErr = abi.JSON(strings.NewReader(royaltyInfoABIJSON))
	})
	return royaltyABI, royaltyABIErr
}

// RoyaltyResolver answers who receives the royalty for an item by querying
// the collection's on-chain royalty registry. The core computes royalty
// amounts itself; this resolver only supplies recipients.
type RoyaltyResolver struct {
	client     *Client
	collection common.Address

	maxRetries int
	backoff    time.Duration
}

// NewRoyaltyResolver builds a resolver against one collection contract.
func NewRoyaltyResolver(client *Client, collection common.Address, maxRetries int, backoff time.Duration) *RoyaltyResolver {
	return &RoyaltyResolver{
		client:     client,
		collection: collection,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// RecipientFor returns the royalty recipient for an item, or false when the
// collection names none.
func (r *RoyaltyResolver) RecipientFor(ctx context.Context, id *uint256.Int) (common.Address, bool, error) {
	if r.client == nil {
		return common.Address{}, false, fmt.Errorf("chain client is nil")
	}
	royaltyInfoABI, err := getRoyaltyABI()
	if err != nil {
		return common.Address{}, false, err
	}

	// The sale price only scales the returned amount, which we discard; any
	// nonzero value yields the recipient.
	data, err := royaltyInfoABI.Pack("royaltyInfo", id.ToBig(), big.NewInt(1))
	if err != nil {
		return common.Address{}, false, fmt.Errorf("pack royaltyInfo: %w", err)
	}

	collection := r.collection
	msg := ethereum.CallMsg{To: &collection, Data: data}
	var resp []byte
	err = withRetry(ctx, r.maxRetries, r.backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.client.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return common.Address{}, false, fmt.Errorf("call royaltyInfo: %w", err)
	}

	values, err := royaltyInfoABI.Unpack("royaltyInfo", resp)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("unpack royaltyInfo: %w", err)
	}
	if len(values) != 2 {
		return common.Address{}, false, fmt.Errorf("royaltyInfo return size %d", len(values))
	}
	recipient, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, false, fmt.Errorf("royaltyInfo unexpected type %T", values[0])
	}
	if recipient == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return recipient, true, nil
}
