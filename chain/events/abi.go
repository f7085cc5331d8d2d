package events

import (
	_ "embed"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed escrow.abi.json
var escrowABIJSON string

// ContractABI is the parsed event ABI of the SubscriptionEscrow contract.
var ContractABI = mustParseABI(escrowABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("parse escrow abi: " + err.Error())
	}
	return parsed
}
