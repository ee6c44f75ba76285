package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrCallReverted is reported for a call that failed inside a multicall batch
	ErrCallReverted = errors.New("call reverted")

	// ErrBatchMismatch is reported when a multicall returns the wrong number of results
	ErrBatchMismatch = errors.New("multicall result count mismatch")

	// ErrDecode is reported when return data does not match the method outputs
	ErrDecode = errors.New("failed to decode return data")
)

// Call describes a single read-only contract call. A nil Block means latest.
type Call struct {
	Target common.Address
	ABI    *abi.ABI
	Method string
	Args   []interface{}
	Block  *big.Int
}

// Result is the outcome of one Call. A non-nil Err marks the call unavailable.
type Result struct {
	Values []interface{}
	Raw    []byte
	Err    error
}

// OK reports whether the call succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// BigInt returns the first output as a *big.Int
func (r Result) BigInt() (*big.Int, bool) {
	if !r.OK() || len(r.Values) == 0 {
		return nil, false
	}
	v, ok := r.Values[0].(*big.Int)
	return v, ok && v != nil
}

// Uint8 returns the first output as a uint8
func (r Result) Uint8() (uint8, bool) {
	if !r.OK() || len(r.Values) == 0 {
		return 0, false
	}
	v, ok := r.Values[0].(uint8)
	return v, ok
}

// Text returns the first output as a string. Tokens returning bytes32
// instead of string are decoded from the raw return data.
func (r Result) Text() (string, bool) {
	if len(r.Values) > 0 {
		if v, ok := r.Values[0].(string); ok && r.OK() {
			return v, true
		}
	}
	if !errors.Is(r.Err, ErrDecode) || len(r.Raw) == 0 {
		return "", false
	}
	s, err := decodeStringOrBytes32(r.Raw)
	if err != nil {
		return "", false
	}
	return s, true
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithCallCounter records per-call outcomes on a counter labelled by outcome
func WithCallCounter(counter *prometheus.CounterVec) ReaderOption {
	return func(r *Reader) {
		r.calls = counter
	}
}

// WithoutMulticall issues every call as an individual eth_call
func WithoutMulticall() ReaderOption {
	return func(r *Reader) {
		r.multicall = nil
	}
}

// Reader executes batches of contract calls with per-call failure isolation
type Reader struct {
	backend     Backend
	multicall   *common.Address
	concurrency int
	logger      *zap.Logger
	calls       *prometheus.CounterVec
}

// NewReader creates a reader. An empty multicallAddr disables batching.
func NewReader(backend Backend, multicallAddr string, concurrency int, logger *zap.Logger, opts ...ReaderOption) *Reader {
	if concurrency <= 0 {
		concurrency = 1
	}
	r := &Reader{
		backend:     backend,
		concurrency: concurrency,
		logger:      logger,
	}
	if common.IsHexAddress(multicallAddr) {
		addr := common.HexToAddress(multicallAddr)
		r.multicall = &addr
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BlockNumber returns the latest block number
func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	return r.backend.BlockNumber(ctx)
}

// FilterLogs retrieves logs matching the filter query
func (r *Reader) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return r.backend.FilterLogs(ctx, query)
}

// Execute runs every call and returns one result per call in the same order.
// Calls pinned to different blocks are sent as separate sub-batches.
// It never fails as a whole: transport errors mark the affected indices unavailable.
func (r *Reader) Execute(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	if len(calls) == 0 {
		return results
	}

	packed := make([][]byte, len(calls))
	var groups []*blockGroup
	byBlock := make(map[string]*blockGroup)

	for i, call := range calls {
		if call.ABI == nil {
			results[i].Err = fmt.Errorf("missing ABI for %s", call.Method)
			continue
		}
		data, err := call.ABI.Pack(call.Method, call.Args...)
		if err != nil {
			results[i].Err = fmt.Errorf("failed to pack %s: %w", call.Method, err)
			continue
		}
		packed[i] = data

		key := blockKey(call.Block)
		group, ok := byBlock[key]
		if !ok {
			group = &blockGroup{block: call.Block}
			byBlock[key] = group
			groups = append(groups, group)
		}
		group.indices = append(group.indices, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, group := range groups {
		group := group
		if r.multicall != nil {
			g.Go(func() error {
				r.executeMulticall(gctx, group, calls, packed, results)
				return nil
			})
			continue
		}
		for _, idx := range group.indices {
			idx := idx
			g.Go(func() error {
				r.executeSingle(gctx, calls[idx], packed[idx], &results[idx])
				return nil
			})
		}
	}
	_ = g.Wait()

	r.record(results)
	return results
}

type blockGroup struct {
	block   *big.Int
	indices []int
}

func blockKey(block *big.Int) string {
	if block == nil {
		return "latest"
	}
	return block.String()
}

type multicall3Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type multicall3Result struct {
	Success    bool
	ReturnData []byte
}

// executeMulticall sends one aggregate3 call for a group pinned to the same block
func (r *Reader) executeMulticall(ctx context.Context, group *blockGroup, calls []Call, packed [][]byte, results []Result) {
	batch := make([]multicall3Call, len(group.indices))
	for j, idx := range group.indices {
		batch[j] = multicall3Call{
			Target:       calls[idx].Target,
			AllowFailure: true,
			CallData:     packed[idx],
		}
	}

	fail := func(err error) {
		for _, idx := range group.indices {
			results[idx].Err = err
		}
	}

	data, err := Multicall3ABI.Pack("aggregate3", batch)
	if err != nil {
		fail(fmt.Errorf("failed to pack multicall: %w", err))
		return
	}

	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: r.multicall, Data: data}, group.block)
	if err != nil {
		r.logger.Warn("Multicall batch failed",
			zap.String("block", blockKey(group.block)),
			zap.Int("calls", len(group.indices)),
			zap.Error(err),
		)
		fail(fmt.Errorf("failed to execute multicall: %w", err))
		return
	}

	out, err := Multicall3ABI.Unpack("aggregate3", raw)
	if err != nil || len(out) == 0 {
		fail(fmt.Errorf("failed to decode multicall: %w", err))
		return
	}
	decoded := *abi.ConvertType(out[0], new([]multicall3Result)).(*[]multicall3Result)
	if len(decoded) != len(group.indices) {
		fail(ErrBatchMismatch)
		return
	}

	for j, idx := range group.indices {
		if !decoded[j].Success {
			results[idx] = Result{Raw: decoded[j].ReturnData, Err: ErrCallReverted}
			continue
		}
		results[idx] = decodeResult(calls[idx], decoded[j].ReturnData)
	}
}

// executeSingle issues one eth_call
func (r *Reader) executeSingle(ctx context.Context, call Call, data []byte, result *Result) {
	target := call.Target
	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, call.Block)
	if err != nil {
		r.logger.Debug("Contract call failed",
			zap.String("target", target.Hex()),
			zap.String("method", call.Method),
			zap.String("block", blockKey(call.Block)),
			zap.Error(err),
		)
		*result = Result{Err: err}
		return
	}
	*result = decodeResult(call, raw)
}

func decodeResult(call Call, raw []byte) Result {
	values, err := call.ABI.Unpack(call.Method, raw)
	if err != nil {
		return Result{Raw: raw, Err: fmt.Errorf("%w for %s: %v", ErrDecode, call.Method, err)}
	}
	return Result{Values: values, Raw: raw}
}

func (r *Reader) record(results []Result) {
	if r.calls == nil {
		return
	}
	for _, res := range results {
		if res.OK() {
			r.calls.WithLabelValues("ok").Inc()
		} else {
			r.calls.WithLabelValues("unavailable").Inc()
		}
	}
}
