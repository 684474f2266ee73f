// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"payrail/platform/shared/types"
)

// ParsedAuthorization is a structurally validated EIP-3009 authorization.
type ParsedAuthorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

// parseAuthorization validates the wire payload and decodes its fields. The
// signature is returned separately as raw 65 bytes.
func parseAuthorization(auth *Authorization) (*ParsedAuthorization, []byte, error) {
	if auth == nil {
		return nil, nil, fmt.Errorf("missing authorization")
	}
	if !common.IsHexAddress(auth.From) {
		return nil, nil, fmt.Errorf("invalid payer address: %s", auth.From)
	}
	if !common.IsHexAddress(auth.To) {
		return nil, nil, fmt.Errorf("invalid recipient address: %s", auth.To)
	}

	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok || value.Sign() <= 0 {
		return nil, nil, fmt.Errorf("invalid authorization value: %s", auth.Value)
	}
	validAfter, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid validAfter: %s", auth.ValidAfter)
	}
	validBefore, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return nil, nil, fmt.Errorf("invalid validBefore: %s", auth.ValidBefore)
	}

	nonceBytes, err := hexutil.Decode(auth.Nonce)
	if err != nil || len(nonceBytes) != 32 {
		return nil, nil, fmt.Errorf("invalid nonce: %s", auth.Nonce)
	}

	sig, err := hexutil.Decode(auth.Signature)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != 65 {
		return nil, nil, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	parsed := &ParsedAuthorization{
		From:        common.HexToAddress(auth.From),
		To:          common.HexToAddress(auth.To),
		Value:       value,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
	}
	copy(parsed.Nonce[:], nonceBytes)
	return parsed, sig, nil
}

// authorizationDigest computes the EIP-712 digest of a
// TransferWithAuthorization message for the token's signing domain.
func authorizationDigest(auth *ParsedAuthorization, chainID *big.Int, asset types.AssetInfo) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": {
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              asset.Name,
			Version:           asset.Version,
			ChainId:           (*math.HexOrDecimal256)(chainID),
			VerifyingContract: asset.Address,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From.Hex(),
			"to":          auth.To.Hex(),
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce[:],
		},
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization struct: %w", err)
	}
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash signing domain: %w", err)
	}

	raw := []byte{0x19, 0x01}
	raw = append(raw, domainSeparator...)
	raw = append(raw, structHash...)
	return crypto.Keccak256(raw), nil
}

// recoverPayer recovers the signing address from an EIP-712 digest.
func recoverPayer(digest, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}

	// SigToPub expects the recovery id as 0/1.
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// paymentHash derives the replay-protection identifier for a gasless payment
// from its nonce, value and payer. Two authorizations over the same tuple map
// to the same claim.
func paymentHash(auth *ParsedAuthorization) string {
	data := make([]byte, 0, 32+32+common.AddressLength)
	data = append(data, auth.Nonce[:]...)
	data = append(data, common.LeftPadBytes(auth.Value.Bytes(), 32)...)
	data = append(data, auth.From.Bytes()...)
	return strings.ToLower(crypto.Keccak256Hash(data).Hex())
}
