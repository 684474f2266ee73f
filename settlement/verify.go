// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// requiredConfirmations is the reorg-protection depth for on-chain
// verification.
const requiredConfirmations = 2

var (
	// transferEventSig is the ERC-20 Transfer(address,address,uint256) topic.
	transferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// paymentSettledEventSig is emitted by the fee-enforcing settlement
	// contract once it has split fees and forwarded the payment.
	paymentSettledEventSig = crypto.Keccak256Hash([]byte("PaymentSettled(address,address,uint256)"))
)

// Verification is the outcome of a successful on-chain check.
type Verification struct {
	Payer  common.Address
	Amount *big.Int
}

// verifyOnChain confirms that txHash paid the treasury at least the expected
// amount of the token, with enough confirmations behind it. It accepts either
// a settlement-contract PaymentSettled log or a raw ERC-20 Transfer log from
// the token contract.
func verifyOnChain(ctx context.Context, chain Chain, txHash common.Hash, token, treasury common.Address, expected *big.Int) (*Verification, error) {
	receipt, err := chain.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("transaction not found: %w", err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("transaction %s reverted", txHash.Hex())
	}

	head, err := chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", err)
	}
	confirmations := head - receipt.BlockNumber.Uint64() + 1
	if receipt.BlockNumber.Uint64() > head || confirmations < requiredConfirmations {
		return nil, fmt.Errorf("transaction has %d confirmations, need %d", confirmations, requiredConfirmations)
	}

	verification := matchPaymentLog(receipt.Logs, token, treasury)
	if verification == nil {
		return nil, fmt.Errorf("no payment to treasury %s found in transaction %s", treasury.Hex(), txHash.Hex())
	}
	if verification.Amount.Cmp(expected) < 0 {
		return nil, fmt.Errorf("payment of %s below expected %s", verification.Amount, expected)
	}
	return verification, nil
}

func matchPaymentLog(logs []*gethtypes.Log, token, treasury common.Address) *Verification {
	for _, entry := range logs {
		if len(entry.Topics) < 3 {
			continue
		}
		recipient := common.BytesToAddress(entry.Topics[2].Bytes())
		if recipient != treasury {
			continue
		}

		switch entry.Topics[0] {
		case paymentSettledEventSig:
			// Settlement-contract path: the contract reports the net amount
			// forwarded after fees.
		case transferEventSig:
			// Raw transfer path: the log must come from the token itself.
			if entry.Address != token {
				continue
			}
		default:
			continue
		}

		return &Verification{
			Payer:  common.BytesToAddress(entry.Topics[1].Bytes()),
			Amount: new(big.Int).SetBytes(entry.Data),
		}
	}
	return nil
}
