package storage

import (
	"fmt"
	"strings"

	"github.com/defi-portfolio-tracker/internal/types"
	"github.com/ethereum/go-ethereum/common"
)

// ValidateWalletAddress checks that an address is a well-formed EVM address
func ValidateWalletAddress(address string) error {
	if !common.IsHexAddress(address) {
		return &types.ServiceError{
			Code:    "INVALID_ADDRESS_FORMAT",
			Message: fmt.Sprintf("invalid wallet address: %s (must be 0x followed by 40 hexadecimal characters)", address),
			Details: map[string]interface{}{
				"address": address,
			},
		}
	}
	return nil
}

// NormalizeWalletAddress lowercases an address for use as a storage key
func NormalizeWalletAddress(address string) string {
	return strings.ToLower(address)
}
