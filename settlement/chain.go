// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// erc3009ABI covers the token calls the settlement service makes: balance and
// nonce reads plus the EIP-3009 transfer executed on the gasless path.
const erc3009ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"name":"authorizationState","type":"function","stateMutability":"view",
	 "inputs":[{"name":"authorizer","type":"address"},{"name":"nonce","type":"bytes32"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"name":"transferWithAuthorization","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"from","type":"address"},{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},{"name":"validAfter","type":"uint256"},
		{"name":"validBefore","type":"uint256"},{"name":"nonce","type":"bytes32"},
		{"name":"v","type":"uint8"},{"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],
	 "outputs":[]}
]`

const (
	receiptPollInterval = 2 * time.Second
	executeGasLimit     = 150000
)

// Chain abstracts the blockchain reads and writes the settlement paths need.
type Chain interface {
	// TransactionReceipt returns the receipt for a mined transaction.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	// BlockNumber returns the current head block number.
	BlockNumber(ctx context.Context) (uint64, error)
	// AuthorizationState reports whether an EIP-3009 nonce has been used.
	AuthorizationState(ctx context.Context, token, authorizer common.Address, nonce [32]byte) (bool, error)
	// BalanceOf returns the token balance of an account.
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	// ExecuteTransferWithAuthorization submits the gasless transfer, paying
	// gas from the service signer account.
	ExecuteTransferWithAuthorization(ctx context.Context, token common.Address, auth ParsedAuthorization, sig []byte) (common.Hash, error)
	// WaitForReceipt polls until the transaction is mined or ctx is done.
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// EthChain implements Chain against a JSON-RPC node via go-ethereum.
type EthChain struct {
	client   *ethclient.Client
	signer   *Signer
	chainID  *big.Int
	tokenABI abi.ABI
}

// NewEthChain dials the RPC endpoint and binds the signer account.
func NewEthChain(rpcURL string, signer *Signer, chainID *big.Int) (*EthChain, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain RPC: %w", err)
	}

	tokenABI, err := abi.JSON(strings.NewReader(erc3009ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token ABI: %w", err)
	}

	return &EthChain{
		client:   client,
		signer:   signer,
		chainID:  chainID,
		tokenABI: tokenABI,
	}, nil
}

// TransactionReceipt returns the receipt for a mined transaction
func (c *EthChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
	}
	return receipt, nil
}

// BlockNumber returns the current head block number
func (c *EthChain) BlockNumber(ctx context.Context) (uint64, error) {
	number, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return number, nil
}

// AuthorizationState reads the token's EIP-3009 nonce registry
func (c *EthChain) AuthorizationState(ctx context.Context, token, authorizer common.Address, nonce [32]byte) (bool, error) {
	data, err := c.tokenABI.Pack("authorizationState", authorizer, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to pack authorizationState call: %w", err)
	}

	result, err := c.call(ctx, token, data)
	if err != nil {
		return false, err
	}

	values, err := c.tokenABI.Unpack("authorizationState", result)
	if err != nil {
		return false, fmt.Errorf("failed to unpack authorizationState result: %w", err)
	}
	used, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState result type")
	}
	return used, nil
}

// BalanceOf returns the token balance of an account
func (c *EthChain) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	data, err := c.tokenABI.Pack("balanceOf", account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf call: %w", err)
	}

	result, err := c.call(ctx, token, data)
	if err != nil {
		return nil, err
	}

	values, err := c.tokenABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balanceOf result: %w", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type")
	}
	return balance, nil
}

// ExecuteTransferWithAuthorization signs and submits transferWithAuthorization
func (c *EthChain) ExecuteTransferWithAuthorization(ctx context.Context, token common.Address, auth ParsedAuthorization, sig []byte) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, fmt.Errorf("no signer configured for gasless execution")
	}
	if len(sig) != 65 {
		return common.Hash{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	var r, s [32]byte
	copy(r[:], sig[0:32])
	copy(s[:], sig[32:64])
	v := sig[64]
	// Normalize the recovery id to the on-chain 27/28 convention.
	if v < 27 {
		v += 27
	}

	data, err := c.tokenABI.Pack("transferWithAuthorization",
		auth.From, auth.To, auth.Value, auth.ValidAfter, auth.ValidBefore, auth.Nonce,
		v, r, s,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack transferWithAuthorization: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.signer.Address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get account nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := gethtypes.NewTransaction(nonce, token, big.NewInt(0), executeGasLimit, gasPrice, data)
	signedTx, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainID), c.signer.Key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx.Hash(), nil
}

// WaitForReceipt polls for the receipt until the context is cancelled
func (c *EthChain) WaitForReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for receipt of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *EthChain) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call contract: %w", err)
	}
	return result, nil
}
