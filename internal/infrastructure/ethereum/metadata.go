package ethereum

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenMetadata holds the ERC-20 fields needed to present a token amount
type TokenMetadata struct {
	Symbol   string
	Decimals uint8
}

// FetchTokenMetadata reads symbol and decimals for several tokens in one batch.
// Tokens whose decimals cannot be read are left out of the result.
// A missing symbol is reported as an empty string.
func FetchTokenMetadata(ctx context.Context, reader *Reader, tokens []common.Address) map[common.Address]TokenMetadata {
	calls := make([]Call, 0, len(tokens)*2)
	for _, token := range tokens {
		calls = append(calls,
			Call{Target: token, ABI: ERC20ABI, Method: "decimals"},
			Call{Target: token, ABI: ERC20ABI, Method: "symbol"},
		)
	}

	results := reader.Execute(ctx, calls)

	out := make(map[common.Address]TokenMetadata, len(tokens))
	for i, token := range tokens {
		decimals, ok := results[2*i].Uint8()
		if !ok {
			continue
		}
		symbol, _ := results[2*i+1].Text()
		out[token] = TokenMetadata{Symbol: symbol, Decimals: decimals}
	}
	return out
}

// decodeStringOrBytes32 decodes a response that could be either:
// 1. ABI-encoded string: offset (32 bytes) + length (32 bytes) + data (padded to 32 bytes)
// 2. bytes32: raw 32 bytes (e.g., MKR token)
func decodeStringOrBytes32(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty data")
	}

	if len(data) < 32 {
		return "", fmt.Errorf("data too short: %d bytes", len(data))
	}

	if len(data) >= 64 {
		offset := new(big.Int).SetBytes(data[:32])
		if offset.IsUint64() && offset.Uint64() == 32 {
			length := new(big.Int).SetBytes(data[32:64])
			if !length.IsUint64() {
				return "", fmt.Errorf("invalid string length")
			}
			strLen := int(length.Uint64())
			if strLen == 0 {
				return "", nil
			}
			if strLen > 0 && len(data) >= 64+strLen {
				return strings.TrimRight(string(data[64:64+strLen]), "\x00"), nil
			}
		}
	}

	// bytes32 with trailing null padding
	result := bytes.TrimRight(data[:32], "\x00")
	if isPrintableASCII(result) {
		return string(result), nil
	}

	return "0x" + hex.EncodeToString(data[:32]), nil
}

// isPrintableASCII checks if all bytes are printable ASCII characters
func isPrintableASCII(data []byte) bool {
	for _, b := range data {
		if b < 32 || b > 126 {
			return false
		}
	}
	return len(data) > 0
}
