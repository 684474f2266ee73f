// Copyright 2025 PayRail
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package settlement

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"payrail/platform/shared/logger"
	"payrail/platform/shared/types"
)

const executeReceiptTimeout = 90 * time.Second

// Service settles payments. Both paths share one invariant: at most one
// successful settlement per transaction identifier, enforced by the claim
// store.
type Service struct {
	claims     ClaimStore
	events     EventStore
	treasuries TreasuryStore
	chains     map[types.Network]Chain
	signer     *Signer
	log        *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithChain binds a blockchain client to a network.
func WithChain(network types.Network, chain Chain) Option {
	return func(s *Service) {
		s.chains[network] = chain
	}
}

// WithSigner sets the gas-paying account for the gasless path.
func WithSigner(signer *Signer) Option {
	return func(s *Service) {
		s.signer = signer
	}
}

// NewService creates a settlement service
func NewService(claims ClaimStore, events EventStore, treasuries TreasuryStore, opts ...Option) *Service {
	s := &Service{
		claims:     claims,
		events:     events,
		treasuries: treasuries,
		chains:     make(map[types.Network]Chain),
		log:        logger.New("settlement"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settle verifies and, for gasless authorizations, executes a payment.
// Failures return a *SettlementError; the claim taken during the attempt is
// released on every failure path and kept permanently on success.
func (s *Service) Settle(ctx context.Context, req *SettleRequest) (*SettleResponse, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	asset, err := types.GetAssetInfo(req.Network, req.Asset)
	if err != nil {
		return nil, NewUnsupportedAssetError(requestID, req.Asset)
	}

	chain, ok := s.chains[req.Network]
	if !ok {
		return nil, NewFacilitatorNotConfiguredError(requestID, req.Network.String())
	}

	treasury, err := s.treasuries.GetTreasury(ctx, req.TenantID, req.Network)
	if err != nil {
		if errors.Is(err, ErrTreasuryNotFound) {
			return nil, NewNoTreasuryError(requestID, req.TenantID)
		}
		s.log.ErrorWithCode(req.TenantID, requestID, "Failed to resolve treasury", 500, err, nil)
		return nil, NewInternalError(requestID, err)
	}

	// Token decimals come from the asset registry here, once, and feed both
	// the expected-amount parse and the recorded event.
	expected, err := types.ParseAmount(req.Amount, asset.Decimals)
	if err != nil {
		return nil, NewVerificationError(requestID, "invalid expected amount: "+req.Amount)
	}

	switch {
	case req.TxHash != "" && req.Authorization != nil:
		return nil, NewInvalidAuthorizationError(requestID, "provide either tx_hash or authorization, not both")
	case req.TxHash != "":
		return s.settleOnChain(ctx, chain, req, requestID, asset, treasury, expected)
	case req.Authorization != nil:
		return s.settleGasless(ctx, chain, req, requestID, asset, treasury, expected)
	default:
		return nil, NewInvalidAuthorizationError(requestID, "either tx_hash or authorization is required")
	}
}

// settleOnChain verifies a transaction the payer already submitted.
func (s *Service) settleOnChain(ctx context.Context, chain Chain, req *SettleRequest, requestID string, asset types.AssetInfo, treasury string, expected *big.Int) (*SettleResponse, error) {
	txID := normalizeTxID(req.TxHash)
	if serr := s.claim(ctx, txID, req, requestID); serr != nil {
		return nil, serr
	}

	settled := false
	defer s.releaseUnless(&settled, txID, req.TenantID, requestID)

	verification, err := verifyOnChain(ctx, chain, common.HexToHash(req.TxHash), common.HexToAddress(asset.Address), common.HexToAddress(treasury), expected)
	if err != nil {
		s.recordError(req, requestID, txID, CodeVerificationFailed, err.Error(),
			[]string{"claimed", "verification_failed"})
		return nil, NewVerificationError(requestID, err.Error())
	}

	if err := s.claims.MarkSettled(ctx, txID); err != nil {
		s.recordError(req, requestID, txID, CodeInternal, err.Error(),
			[]string{"claimed", "verified", "settle_failed"})
		return nil, NewInternalError(requestID, err)
	}
	settled = true

	verifiedAmount := types.FormatAmount(verification.Amount, asset.Decimals)
	s.recordSettled(req, requestID, txID, verifiedAmount, asset.Symbol, verification.Payer.Hex(),
		[]string{"claimed", "verified", "settled"})

	return &SettleResponse{
		Settled:       true,
		FacilitatorID: req.DecisionID,
		Payer:         verification.Payer.Hex(),
		Receipt: Receipt{
			TxHash:         req.TxHash,
			VerifiedAmount: verifiedAmount,
			Asset:          asset.Symbol,
			Timestamp:      time.Now().UTC(),
		},
	}, nil
}

// settleGasless verifies a signed EIP-3009 authorization and executes the
// transfer on the payer's behalf.
func (s *Service) settleGasless(ctx context.Context, chain Chain, req *SettleRequest, requestID string, asset types.AssetInfo, treasury string, expected *big.Int) (*SettleResponse, error) {
	auth, sig, err := parseAuthorization(req.Authorization)
	if err != nil {
		return nil, NewInvalidAuthorizationError(requestID, err.Error())
	}

	if auth.To != common.HexToAddress(treasury) {
		return nil, NewInvalidAuthorizationError(requestID, "authorization is not addressed to the tenant treasury")
	}

	config, err := types.GetNetworkConfig(req.Network)
	if err != nil {
		return nil, NewFacilitatorNotConfiguredError(requestID, req.Network.String())
	}
	digest, err := authorizationDigest(auth, config.ChainID, asset)
	if err != nil {
		return nil, NewInvalidAuthorizationError(requestID, err.Error())
	}
	payer, err := recoverPayer(digest, sig)
	if err != nil {
		return nil, NewInvalidAuthorizationError(requestID, "signature recovery failed")
	}
	if payer != auth.From {
		return nil, NewInvalidAuthorizationError(requestID, "signature does not match declared payer")
	}

	now := big.NewInt(time.Now().Unix())
	if now.Cmp(auth.ValidAfter) <= 0 {
		return nil, NewInvalidAuthorizationError(requestID, "authorization is not yet valid")
	}
	if now.Cmp(auth.ValidBefore) >= 0 {
		return nil, NewInvalidAuthorizationError(requestID, "authorization has expired")
	}

	token := common.HexToAddress(asset.Address)
	used, err := chain.AuthorizationState(ctx, token, auth.From, auth.Nonce)
	if err != nil {
		s.log.ErrorWithCode(req.TenantID, requestID, "Nonce check failed", 500, err, nil)
		return nil, NewInternalError(requestID, err)
	}
	if used {
		return nil, NewPaymentVerificationError(requestID, "authorization nonce already used")
	}

	balance, err := chain.BalanceOf(ctx, token, auth.From)
	if err != nil {
		s.log.ErrorWithCode(req.TenantID, requestID, "Balance check failed", 500, err, nil)
		return nil, NewInternalError(requestID, err)
	}
	if balance.Cmp(auth.Value) < 0 {
		return nil, NewPaymentVerificationError(requestID, "insufficient payer balance")
	}
	if auth.Value.Cmp(expected) < 0 {
		return nil, NewPaymentVerificationError(requestID, "authorized value below expected amount")
	}

	if s.signer == nil {
		return nil, NewFacilitatorNotConfiguredError(requestID, req.Network.String())
	}

	txID := paymentHash(auth)
	if serr := s.claim(ctx, txID, req, requestID); serr != nil {
		return nil, serr
	}

	settled := false
	defer s.releaseUnless(&settled, txID, req.TenantID, requestID)

	txHash, err := chain.ExecuteTransferWithAuthorization(ctx, token, *auth, sig)
	if err != nil {
		s.recordError(req, requestID, txID, CodePaymentVerificationFailed, err.Error(),
			[]string{"verified", "claimed", "execute_failed"})
		return nil, NewPaymentVerificationError(requestID, "failed to execute transfer: "+err.Error())
	}

	receiptCtx, cancel := context.WithTimeout(ctx, executeReceiptTimeout)
	defer cancel()
	receipt, err := chain.WaitForReceipt(receiptCtx, txHash)
	if err != nil {
		s.recordError(req, requestID, txID, CodePaymentVerificationFailed, err.Error(),
			[]string{"verified", "claimed", "executed", "receipt_timeout"})
		return nil, NewPaymentVerificationError(requestID, "transfer not confirmed: "+err.Error())
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		s.recordError(req, requestID, txID, CodePaymentVerificationFailed, "transfer reverted",
			[]string{"verified", "claimed", "executed", "reverted"})
		return nil, NewPaymentVerificationError(requestID, "transfer reverted on-chain")
	}

	if err := s.claims.MarkSettled(ctx, txID); err != nil {
		s.recordError(req, requestID, txID, CodeInternal, err.Error(),
			[]string{"verified", "claimed", "executed", "settle_failed"})
		return nil, NewInternalError(requestID, err)
	}
	settled = true

	verifiedAmount := types.FormatAmount(auth.Value, asset.Decimals)
	s.recordSettled(req, requestID, txHash.Hex(), verifiedAmount, asset.Symbol, auth.From.Hex(),
		[]string{"verified", "claimed", "executed", "settled"})

	return &SettleResponse{
		Settled:       true,
		FacilitatorID: req.DecisionID,
		Payer:         auth.From.Hex(),
		Receipt: Receipt{
			TxHash:         txHash.Hex(),
			VerifiedAmount: verifiedAmount,
			Asset:          asset.Symbol,
			Timestamp:      time.Now().UTC(),
		},
	}, nil
}

func (s *Service) claim(ctx context.Context, txID string, req *SettleRequest, requestID string) *SettlementError {
	existing, ok, err := s.claims.Claim(ctx, &Claim{
		TxID:      txID,
		RequestID: requestID,
		TenantID:  req.TenantID,
		Amount:    req.Amount,
		Asset:     req.Asset,
	})
	if err != nil {
		s.log.ErrorWithCode(req.TenantID, requestID, "Claim failed", 500, err, nil)
		return NewInternalError(requestID, err)
	}
	if !ok {
		s.log.Warn(req.TenantID, requestID, "Replay detected", map[string]interface{}{
			"tx_id":            txID,
			"original_request": existing.RequestID,
		})
		return NewReplayError(existing.RequestID, existing.ClaimedAt)
	}
	return nil
}

// releaseUnless releases the claim on every failure path. The detached
// context keeps the release alive when the request context is cancelled
// mid-settle.
func (s *Service) releaseUnless(settled *bool, txID, tenantID, requestID string) {
	if *settled {
		return
	}
	if err := s.claims.Release(context.Background(), txID); err != nil {
		s.log.ErrorWithCode(tenantID, requestID, "Failed to release claim", 500, err, map[string]interface{}{
			"tx_id": txID,
		})
	}
}

func (s *Service) recordSettled(req *SettleRequest, requestID, txHash, amount, asset, payer string, steps []string) {
	s.record(&Event{
		TenantID:       req.TenantID,
		RequestID:      requestID,
		TxHash:         txHash,
		Status:         EventStatusSettled,
		VerifiedAmount: amount,
		Asset:          asset,
		Payer:          payer,
		Steps:          steps,
	})
}

func (s *Service) recordError(req *SettleRequest, requestID, txHash, code, message string, steps []string) {
	s.record(&Event{
		TenantID:     req.TenantID,
		RequestID:    requestID,
		TxHash:       txHash,
		Status:       EventStatusError,
		ErrorCode:    code,
		ErrorMessage: message,
		Steps:        steps,
	})
}

func (s *Service) record(event *Event) {
	// The audit trail must survive request cancellation.
	if err := s.events.Record(context.Background(), event); err != nil {
		s.log.ErrorWithCode(event.TenantID, event.RequestID, "Failed to record settlement event", 500, err, nil)
	}
}

func normalizeTxID(txHash string) string {
	return common.HexToHash(txHash).Hex()
}
