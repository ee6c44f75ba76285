package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	chain "github.com/bimakw/yield-aggregator/internal/infrastructure/ethereum"
)

// ErrReverted is returned for calls without a registered handler
var ErrReverted = errors.New("execution reverted")

// CallHandler answers one contract method. block is nil for latest.
type CallHandler func(args []interface{}, block *big.Int) ([]interface{}, error)

// ChainCall records one contract method invocation seen by FakeChain
type ChainCall struct {
	Target common.Address
	Method string
	Block  *big.Int
}

type handlerEntry struct {
	method abi.Method
	fn     CallHandler
}

// FakeChain is an in-memory chain backend. It answers eth_call for registered
// (target, method) pairs, unwraps Multicall3 aggregate3 batches and filters
// stored logs.
type FakeChain struct {
	mu       sync.Mutex
	Head     uint64
	Logs     []types.Log
	handlers map[string]handlerEntry

	// Function hooks for custom behavior
	BlockNumberErr error
	FilterLogsFunc func(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)

	// Call tracking
	Calls       []ChainCall
	FilterCalls []ethereum.FilterQuery
}

var _ chain.Backend = (*FakeChain)(nil)

// NewFakeChain creates a chain whose latest block is head
func NewFakeChain(head uint64) *FakeChain {
	return &FakeChain{
		Head:     head,
		handlers: make(map[string]handlerEntry),
	}
}

func handlerKey(target common.Address, selector []byte) string {
	return strings.ToLower(target.Hex()) + "|" + common.Bytes2Hex(selector)
}

// Handle registers fn as the implementation of method on target
func (f *FakeChain) Handle(target common.Address, contract *abi.ABI, method string, fn CallHandler) {
	m, ok := contract.Methods[method]
	if !ok {
		panic(fmt.Sprintf("unknown method %s", method))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[handlerKey(target, m.ID)] = handlerEntry{method: m, fn: fn}
}

// Returns registers a method that answers the same values at every block
func (f *FakeChain) Returns(target common.Address, contract *abi.ABI, method string, values ...interface{}) {
	f.Handle(target, contract, method, func([]interface{}, *big.Int) ([]interface{}, error) {
		return values, nil
	})
}

// Reverts registers a method that always reverts
func (f *FakeChain) Reverts(target common.Address, contract *abi.ABI, method string) {
	f.Handle(target, contract, method, func([]interface{}, *big.Int) ([]interface{}, error) {
		return nil, ErrReverted
	})
}

// CallCount returns how many times method was invoked on any target
func (f *FakeChain) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// BlockNumber returns the configured head
func (f *FakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	if f.BlockNumberErr != nil {
		return 0, f.BlockNumberErr
	}
	return f.Head, nil
}

// CallContract answers direct calls and aggregate3 batches
func (f *FakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, ErrReverted
	}

	aggregate := chain.Multicall3ABI.Methods["aggregate3"]
	if *msg.To == chain.DefaultMulticall3Address && string(msg.Data[:4]) == string(aggregate.ID) {
		return f.aggregate(aggregate, msg.Data[4:], block)
	}
	return f.dispatch(*msg.To, msg.Data, block)
}

type aggregateCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type aggregateResult struct {
	Success    bool
	ReturnData []byte
}

func (f *FakeChain) aggregate(method abi.Method, data []byte, block *big.Int) ([]byte, error) {
	in, err := method.Inputs.Unpack(data)
	if err != nil {
		return nil, err
	}
	batch := *abi.ConvertType(in[0], new([]aggregateCall)).(*[]aggregateCall)

	out := make([]aggregateResult, len(batch))
	for i, c := range batch {
		ret, err := f.dispatch(c.Target, c.CallData, block)
		out[i] = aggregateResult{Success: err == nil, ReturnData: ret}
	}
	return method.Outputs.Pack(out)
}

func (f *FakeChain) dispatch(target common.Address, data []byte, block *big.Int) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrReverted
	}

	f.mu.Lock()
	entry, ok := f.handlers[handlerKey(target, data[:4])]
	if ok {
		f.Calls = append(f.Calls, ChainCall{Target: target, Method: entry.method.Name, Block: copyBlock(block)})
	}
	f.mu.Unlock()

	if !ok {
		return nil, ErrReverted
	}

	args, err := entry.method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	values, err := entry.fn(args, block)
	if err != nil {
		return nil, err
	}
	return entry.method.Outputs.Pack(values...)
}

func copyBlock(block *big.Int) *big.Int {
	if block == nil {
		return nil
	}
	return new(big.Int).Set(block)
}

// FilterLogs returns stored logs matching address, block range and topics
func (f *FakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	f.FilterCalls = append(f.FilterCalls, q)
	f.mu.Unlock()

	if f.FilterLogsFunc != nil {
		return f.FilterLogsFunc(ctx, q)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]types.Log, 0)
	for _, log := range f.Logs {
		if matchLog(log, q) {
			out = append(out, log)
		}
	}
	return out, nil
}

func matchLog(log types.Log, q ethereum.FilterQuery) bool {
	if q.FromBlock != nil && log.BlockNumber < q.FromBlock.Uint64() {
		return false
	}
	if q.ToBlock != nil && log.BlockNumber > q.ToBlock.Uint64() {
		return false
	}
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == log.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alternatives := range q.Topics {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(log.Topics) {
			return false
		}
		found := false
		for _, topic := range alternatives {
			if topic == log.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
