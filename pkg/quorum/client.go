package quorum

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainapsis/oko-tss/pkg/logger"
	"github.com/chainapsis/oko-tss/pkg/types"
)

// NodeAPI is the per-node protocol surface the quorum client fans out over.
// The production implementation is the HTTP client in this package; tests
// substitute fakes.
type NodeAPI interface {
	GetKeyShares(ctx context.Context, node Node, req types.KeyShareGetRequest) (types.CurveShares, error)
	RegisterKeyShares(ctx context.Context, node Node, req types.KeyShareRegisterRequest) (types.CurveRegistrations, error)
	ReshareKeyShares(ctx context.Context, node Node, req types.KeyShareRegisterRequest) error
	ReshareRegister(ctx context.Context, node Node, req types.KeyShareRegisterRequest) error
}

// NodeShares pairs a node with the shares it returned.
type NodeShares struct {
	Node   Node
	Shares types.CurveShares
}

// Client gathers key shares from a threshold of nodes, tolerating up to
// N - threshold unreachable or stale nodes.
type Client struct {
	api NodeAPI
}

func NewClient(api NodeAPI) *Client {
	return &Client{api: api}
}

type nodeResult struct {
	node   Node
	shares types.CurveShares
	err    error
}

// RequestKeyShares shuffles the node list, asks the first threshold nodes in
// parallel and backfills failed nodes one-for-one from the remaining pool.
// It returns as soon as threshold successes accumulate, fails immediately on
// a logical (fatal) error, and reports INSUFFICIENT_SHARES when the pool
// runs dry.
func (c *Client) RequestKeyShares(ctx context.Context, nodes []Node, threshold int, req types.KeyShareGetRequest) ([]NodeShares, error) {
	if threshold < 1 {
		return nil, types.E(types.ErrInsufficientShares, "threshold must be at least 1")
	}

	round, backup := SplitNodes(Shuffle(nodes), threshold)

	var collected []NodeShares
	for len(round) > 0 {
		results := c.fanOut(ctx, round, req)

		var failed int
		for _, res := range results {
			if res.err == nil {
				collected = append(collected, NodeShares{Node: res.node, Shares: res.shares})
				continue
			}
			if Classify(res.err) == Fatal {
				// The share is logically absent; trying other nodes cannot help.
				return nil, types.WrapE(types.ErrWalletNotFound,
					fmt.Sprintf("key share missing on node %s", res.node.Name), res.err)
			}
			logger.Warn("Key share request failed, substituting backup node",
				"node", res.node.Name, "error", res.err.Error())
			failed++
		}

		if len(collected) >= threshold {
			return collected[:threshold], nil
		}

		// Replace failures one-for-one from the backup pool.
		take := min(failed, len(backup))
		round, backup = backup[:take], backup[take:]
	}

	return nil, types.E(types.ErrInsufficientShares,
		fmt.Sprintf("insufficient key shares: got %d, need %d", len(collected), threshold))
}

// fanOut issues the current round's node calls in parallel and waits for all
// outcomes. Concurrency is bounded by the round width, not the node count.
func (c *Client) fanOut(ctx context.Context, round []Node, req types.KeyShareGetRequest) []nodeResult {
	results := make([]nodeResult, len(round))
	var wg sync.WaitGroup
	wg.Add(len(round))
	for i, node := range round {
		go func(i int, node Node) {
			defer wg.Done()
			shares, err := c.api.GetKeyShares(ctx, node, req)
			results[i] = nodeResult{node: node, shares: shares, err: err}
		}(i, node)
	}
	wg.Wait()
	return results
}

// RegisterKeyShares registers shares on a single node. A DUPLICATE_PUBLIC_KEY
// answer proves the node already holds the target state, so it is treated as
// success for retry-safety.
func (c *Client) RegisterKeyShares(ctx context.Context, node Node, req types.KeyShareRegisterRequest) error {
	_, err := c.api.RegisterKeyShares(ctx, node, req)
	if err != nil && types.IsCode(err, types.ErrDuplicatePublicKey) {
		logger.Info("Node already holds key share, treating register as success", "node", node.Name)
		return nil
	}
	return err
}

// ReshareKeyShares runs the reshare verification against a single node.
func (c *Client) ReshareKeyShares(ctx context.Context, node Node, req types.KeyShareRegisterRequest) error {
	return c.api.ReshareKeyShares(ctx, node, req)
}

// ReshareRegister registers shares on a node newly added to a wallet's set.
func (c *Client) ReshareRegister(ctx context.Context, node Node, req types.KeyShareRegisterRequest) error {
	err := c.api.ReshareRegister(ctx, node, req)
	if err != nil && types.IsCode(err, types.ErrDuplicatePublicKey) {
		return nil
	}
	return err
}
