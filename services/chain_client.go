// services/chain_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Chain failure modes. NetworkUnavailable is transient and retryable;
// InsufficientFunds and Reverted are fatal for the attempt.
var (
	ErrNetworkUnavailable  = errors.New("chain service unavailable")
	ErrInsufficientFunds   = errors.New("insufficient funds for transaction")
	ErrReverted            = errors.New("transaction reverted")
	ErrConfirmationTimeout = errors.New("confirmation wait timed out")
)

type MintResult struct {
	TokenID int64  `json:"token_id"`
	TxHash  string `json:"tx_hash"`
}

type BatchMintResult struct {
	TokenIDs []int64 `json:"token_ids"`
	TxHash   string  `json:"tx_hash"`
}

const (
	TxConfirmed = "confirmed"
	TxReverted  = "reverted"
	TxPending   = "pending"
)

type ConfirmationResult struct {
	Status      string `json:"status"` // confirmed | reverted | pending
	BlockNumber int64  `json:"block_number"`
}

// ChainGateway abstracts the token contract operations so the orchestrator
// and workers stay chain-agnostic. Addresses are plain strings. All calls
// block on network I/O and honor the passed context.
type ChainGateway interface {
	// MintTo issues a new token. NOT idempotent — resubmitting identical
	// parameters double-mints, so retry decisions belong to the caller.
	MintTo(ctx context.Context, recipient, metadataURI string) (*MintResult, error)
	// MintBatch mints count tokens to a single recipient (escrow pre-mint)
	MintBatch(ctx context.Context, recipient string, count int64, metadataURI string) (*BatchMintResult, error)
	// TransferEscrowed moves a pre-minted token from escrow to a claimant
	TransferEscrowed(ctx context.Context, tokenID int64, recipient string) (string, error)
	// WaitForConfirmation polls until the transaction is final or the context
	// deadline elapses (ErrConfirmationTimeout)
	WaitForConfirmation(ctx context.Context, txHash string, minConfirmations int) (*ConfirmationResult, error)
	// GetOwnership returns the current owner address of a token
	GetOwnership(ctx context.Context, tokenID int64) (string, error)
	// HasRewardType mirrors the contract's per-category uniqueness check
	HasRewardType(ctx context.Context, rewardType, address string) (bool, error)
}

// ChainServiceClient talks to the internal chain service that wraps the
// token contract. Authenticated with a service token like every other
// internal call.
type ChainServiceClient struct {
	BaseURL      string
	Token        string
	Client       *http.Client
	PollInterval time.Duration
}

func NewChainServiceClient(baseURL, token string) *ChainServiceClient {
	return &ChainServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
		PollInterval: 2 * time.Second,
	}
}

func (c *ChainServiceClient) MintTo(ctx context.Context, recipient, metadataURI string) (*MintResult, error) {
	var out MintResult
	err := c.post(ctx, "/chain/mint", map[string]interface{}{
		"recipient":    recipient,
		"metadata_uri": metadataURI,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ChainServiceClient) MintBatch(ctx context.Context, recipient string, count int64, metadataURI string) (*BatchMintResult, error) {
	var out BatchMintResult
	err := c.post(ctx, "/chain/mint-batch", map[string]interface{}{
		"recipient":    recipient,
		"count":        count,
		"metadata_uri": metadataURI,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *ChainServiceClient) TransferEscrowed(ctx context.Context, tokenID int64, recipient string) (string, error) {
	var out struct {
		TxHash string `json:"tx_hash"`
	}
	err := c.post(ctx, "/chain/transfer", map[string]interface{}{
		"token_id":  tokenID,
		"recipient": recipient,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.TxHash, nil
}

// WaitForConfirmation polls the transaction status endpoint until the chain
// reports a final state or ctx expires.
func (c *ChainServiceClient) WaitForConfirmation(ctx context.Context, txHash string, minConfirmations int) (*ConfirmationResult, error) {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		var out ConfirmationResult
		err := c.get(ctx, fmt.Sprintf("/chain/tx/%s?min_confirmations=%d", txHash, minConfirmations), &out)
		if err == nil {
			switch out.Status {
			case TxConfirmed, TxReverted:
				return &out, nil
			}
		} else if !errors.Is(err, ErrNetworkUnavailable) {
			return nil, err
		}
		// pending or transient error — keep polling until the deadline

		select {
		case <-ctx.Done():
			return nil, ErrConfirmationTimeout
		case <-ticker.C:
		}
	}
}

func (c *ChainServiceClient) GetOwnership(ctx context.Context, tokenID int64) (string, error) {
	var out struct {
		Owner string `json:"owner"`
	}
	if err := c.get(ctx, fmt.Sprintf("/chain/ownership/%d", tokenID), &out); err != nil {
		return "", err
	}
	return out.Owner, nil
}

func (c *ChainServiceClient) HasRewardType(ctx context.Context, rewardType, address string) (bool, error) {
	var out struct {
		HasReward bool `json:"has_reward"`
	}
	if err := c.get(ctx, fmt.Sprintf("/chain/has-reward-type?type=%s&address=%s", rewardType, address), &out); err != nil {
		return false, err
	}
	return out.HasReward, nil
}

func (c *ChainServiceClient) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	jsonData, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	return c.do(req, out)
}

func (c *ChainServiceClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Service-Token", c.Token)

	return c.do(req, out)
}

// do maps chain service responses onto the typed failure modes
func (c *ChainServiceClient) do(req *http.Request, out interface{}) error {
	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode chain service response: %w", err)
		}
		return nil
	case http.StatusPaymentRequired:
		return ErrInsufficientFunds
	case http.StatusConflict:
		return ErrReverted
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusBadGateway, http.StatusTooManyRequests:
		return fmt.Errorf("%w: chain service returned %d", ErrNetworkUnavailable, resp.StatusCode)
	default:
		log.Printf("ChainService %s returned %d: %s", req.URL.Path, resp.StatusCode, string(body))
		return fmt.Errorf("chain service error: %d", resp.StatusCode)
	}
}
