package propose

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const base10 = 10

type parsedRequest struct {
	to    common.Address
	value *big.Int
	data  []byte
}

// parseRequest validates operator input. Every failure here surfaces
// before the engine touches the network.
func parseRequest(req *Request) (*parsedRequest, error) {
	to, err := parseAddress(req.To)
	if err != nil {
		return nil, err
	}

	value, ok := new(big.Int).SetString(strings.TrimSpace(req.Value), base10)
	if !ok {
		return nil, &ValidationError{Field: "value", Reason: "not a decimal wei amount"}
	}
	if value.Sign() <= 0 {
		return nil, &ValidationError{Field: "value", Reason: "amount must be positive"}
	}

	data, err := parseData(req.Data)
	if err != nil {
		return nil, err
	}

	return &parsedRequest{
		to:    to,
		value: value,
		data:  data,
	}, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, &ValidationError{Field: "to", Reason: "not a hex address"}
	}

	addr := common.HexToAddress(raw)

	// A mixed-case address carries an EIP-55 checksum; verify it. All
	// lower- or all upper-case addresses carry no checksum to check.
	hexPart := strings.TrimPrefix(raw, "0x")
	if hexPart != strings.ToLower(hexPart) && hexPart != strings.ToUpper(hexPart) {
		if raw != addr.Hex() {
			return common.Address{}, &ValidationError{Field: "to", Reason: "address checksum mismatch"}
		}
	}

	return addr, nil
}

func parseData(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0x" {
		return []byte{}, nil
	}

	if !strings.HasPrefix(raw, "0x") {
		return nil, &ValidationError{Field: "data", Reason: "must be 0x-prefixed hex"}
	}

	data, err := hex.DecodeString(raw[2:])
	if err != nil {
		return nil, &ValidationError{Field: "data", Reason: "not valid hex"}
	}

	return data, nil
}
