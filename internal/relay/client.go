// Package relay is a thin client for the hosted Safe transaction
// service. Proposal durability lives entirely in the service; this
// client never caches or persists anything.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	defaultTimeout = 30 * time.Second

	// pendingPageLimit bounds the pending-proposal listing; the service
	// returns proposals ordered from the current nonce upwards, which is
	// all the nonce-conflict check needs.
	pendingPageLimit = 10
)

// Client talks to a Safe transaction service instance.
type Client struct {
	baseURL    string
	safe       common.Address
	httpClient *http.Client
}

// NewClient creates a relay client for the given service base URL and
// Safe address. A nil httpClient falls back to a client with a default
// timeout.
func NewClient(baseURL string, safe common.Address, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		safe:       safe,
		httpClient: httpClient,
	}
}

// ProposeTransaction submits a new multisig transaction proposal.
func (c *Client) ProposeTransaction(ctx context.Context, req *ProposeRequest) error {
	url := fmt.Sprintf("%s/safes/%s/multisig-transactions/", c.baseURL, c.safe.Hex())
	return c.post(ctx, url, req)
}

// Confirm attaches a signature to an existing proposal identified by its
// contract transaction hash.
func (c *Client) Confirm(ctx context.Context, safeTxHash string, signature string) error {
	url := fmt.Sprintf("%s/multisig-transactions/%s/confirmations/", c.baseURL, safeTxHash)
	body := map[string]string{"signature": signature}
	return c.post(ctx, url, body)
}

// ListPending returns the Safe's unexecuted proposals.
func (c *Client) ListPending(ctx context.Context) ([]ProposalRecord, error) {
	url := fmt.Sprintf("%s/safes/%s/multisig-transactions/?executed=false&limit=%d",
		c.baseURL, c.safe.Hex(), pendingPageLimit)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build pending list request")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending transactions")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pending list response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var page pendingResponse
	if err := json.Unmarshal(payload, &page); err != nil {
		return nil, errors.Wrap(err, "failed to decode pending list response")
	}

	return page.Results, nil
}

func (c *Client) post(ctx context.Context, url string, body interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to encode request body")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "relay request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read relay response")
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	return nil
}
