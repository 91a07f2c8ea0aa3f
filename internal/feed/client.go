package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/machinebox/graphql"

	"github.com/AdekunleBamz/Monascribe-sub000/internal/domain/event"
)

// eventsQuery pulls every event kind the normalizer understands in one block
// window. The indexer exposes subscription lifecycle events, token transfers
// and DEX trades under a single flattened events field.
const eventsQuery = `
query ($fromBlock: Int!, $toBlock: Int!) {
    events(fromBlock: $fromBlock, toBlock: $toBlock) {
        id
        kind
        wallet
        counterparty
        amount
        gasCost
        protocol
        blockNumber
        timestamp
    }
}`

const latestBlockQuery = `
query {
    latestBlock
}`

// Client queries the chain indexer's GraphQL endpoint.
type Client struct {
	gql    *graphql.Client
	logger *slog.Logger
}

func NewClient(url string, logger *slog.Logger) *Client {
	return &Client{
		gql:    graphql.NewClient(url),
		logger: logger.With("component", "feed_client"),
	}
}

// LatestBlock returns the indexer's current head block.
func (c *Client) LatestBlock(ctx context.Context) (int64, error) {
	req := graphql.NewRequest(latestBlockQuery)

	var resp struct {
		LatestBlock int64 `json:"latestBlock"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return 0, fmt.Errorf("query latest block: %w", err)
	}
	return resp.LatestBlock, nil
}

// FetchRange returns raw events in the inclusive block window [from, to].
func (c *Client) FetchRange(ctx context.Context, from, to int64) ([]event.RawEvent, error) {
	req := graphql.NewRequest(eventsQuery)
	req.Var("fromBlock", from)
	req.Var("toBlock", to)

	var resp struct {
		Events []event.RawEvent `json:"events"`
	}
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, fmt.Errorf("query events [%d,%d]: %w", from, to, err)
	}
	return resp.Events, nil
}
