// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1

package settlement

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the service account used to pay gas on the gasless path.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// NewSigner derives the account address from a private key
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		Key:     key,
		Address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// LoadSignerFromEnv resolves the signer key from SETTLEMENT_SIGNER_KEY, or
// from AWS Secrets Manager when SETTLEMENT_SIGNER_SECRET_ARN is set. Returns
// nil when neither is configured; the service then runs verification-only.
func LoadSignerFromEnv(ctx context.Context) (*Signer, error) {
	if raw := os.Getenv("SETTLEMENT_SIGNER_KEY"); raw != "" {
		return signerFromHex(raw)
	}

	arn := os.Getenv("SETTLEMENT_SIGNER_SECRET_ARN")
	if arn == "" {
		return nil, nil
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signer secret %s: %w", maskARN(arn), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("signer secret %s has no string value", maskARN(arn))
	}

	// The secret is either a JSON object with a private_key field or the raw
	// key itself.
	secret := *result.SecretString
	var fields map[string]string
	if err := json.Unmarshal([]byte(secret), &fields); err == nil {
		if key, ok := fields["private_key"]; ok {
			secret = key
		}
	}

	return signerFromHex(secret)
}

func signerFromHex(raw string) (*Signer, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signer key: %w", err)
	}
	return NewSigner(key), nil
}

// maskARN masks the secret ARN for logging (shows only last 8 characters)
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}
