package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// NormalizeAddress validates a hex address and returns its lower-cased 0x form,
// which is the identity key of a wallet record.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", errors.Errorf("invalid address %q", address)
	}

	return strings.ToLower(common.HexToAddress(address).Hex()), nil
}

// AddressKey lower-cases an address without validating it.
func AddressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ChecksumAddress renders an address in EIP-55 form, or returns it unchanged when it is not hex.
func ChecksumAddress(address string) string {
	if !common.IsHexAddress(address) {
		return address
	}

	return common.HexToAddress(address).Hex()
}
