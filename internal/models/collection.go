package models

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Collection is the immutable identity record of a tracked collection.
// Created once at setup and never mutated afterwards.
type Collection struct {
	ID              int64     `json:"id" db:"id"`
	Slug            string    `json:"slug" db:"slug"`
	DisplayName     string    `json:"displayName" db:"display_name"`
	ContractAddress string    `json:"contractAddress" db:"contract_address"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// NormalizeContractAddress validates a hex contract address and returns its
// EIP-55 checksummed form. An empty address is allowed for collections whose
// contract is not tracked.
func NormalizeContractAddress(address string) (string, error) {
	if address == "" {
		return "", nil
	}
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid contract address: %s", address)
	}
	return common.HexToAddress(address).Hex(), nil
}
