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

const enumerableABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "owner", "type": "address"}], "name": "balanceOf", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "address", "name": "owner", "type": "address"}, {"internalType": "uint256", "name": "index", "type": "uint256"}], "name": "tokenOfOwnerByIndex", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}], "name": "ownerOf", "outputs": [{"internalType": "address", "name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
]`

var (
	enumerableABI    abi.ABI
	enumerableOnce   sync.Once
	enumerableABIErr error
)

func getEnumerableABI() (abi.ABI, error) {
	enumerableOnce.Do(func() {
		enumerableABI, enumerableABIErr = abi.JSON(strings.NewReader(enumerableABIJSON))
	})
	return enumerableABI, enumerableABIErr
}

// CollectionReader reads holdings from an enumerable ERC721 collection.
type CollectionReader struct {
	client     *Client
	collection common.Address

	maxRetries int
	backoff    time.Duration
}

// NewCollectionReader builds a reader for one collection contract.
func NewCollectionReader(client *Client, collection common.Address, maxRetries int, backoff time.Duration) *CollectionReader {
	return &CollectionReader{
		client:     client,
		collection: collection,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// BalanceOf returns how many items of the collection the owner holds.
func (c *CollectionReader) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	values, err := c.call(ctx, "balanceOf", owner)
	if err != nil {
		return 0, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("balanceOf unexpected type %T", values[0])
	}
	if !balance.IsUint64() {
		return 0, fmt.Errorf("balance does not fit in uint64: %s", balance)
	}
	return balance.Uint64(), nil
}

// TokenOfOwnerByIndex returns the owner's item at the given index.
func (c *CollectionReader) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index uint64) (*uint256.Int, error) {
	values, err := c.call(ctx, "tokenOfOwnerByIndex", owner, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("tokenOfOwnerByIndex unexpected type %T", values[0])
	}
	id, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("token id exceeds 256 bits")
	}
	return id, nil
}

// OwnerOf returns the current owner of an item.
func (c *CollectionReader) OwnerOf(ctx context.Context, id *uint256.Int) (common.Address, error) {
	values, err := c.call(ctx, "ownerOf", id.ToBig())
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ownerOf unexpected type %T", values[0])
	}
	return owner, nil
}

func (c *CollectionReader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if c.client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	collectionABI, err := getEnumerableABI()
	if err != nil {
		return nil, err
	}

	data, err := collectionABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	collection := c.collection
	msg := ethereum.CallMsg{To: &collection, Data: data}
	var resp []byte
	err = withRetry(ctx, c.maxRetries, c.backoff, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.client.CallContract(ctx, msg, nil)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := collectionABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	return values, nil
}
