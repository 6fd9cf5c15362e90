package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Endpoint names the RPC URL and block interval for one chain.
type Endpoint struct {
	URL       string
	BlockTime time.Duration
}

// Registry dials chain clients lazily and keeps one per chain id.
type Registry struct {
	endpoints map[uint64]Endpoint
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[uint64]*Client
}

// NewRegistry creates a registry over the given endpoints.
func NewRegistry(endpoints map[uint64]Endpoint, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		endpoints: endpoints,
		logger:    logger,
		clients:   make(map[uint64]*Client),
	}
}

// Client returns the client for chainID, dialing it on first use.
func (r *Registry) Client(ctx context.Context, chainID uint64) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[chainID]; ok {
		return client, nil
	}
	endpoint, ok := r.endpoints[chainID]
	if !ok || endpoint.URL == "" {
		return nil, fmt.Errorf("no rpc endpoint for chain %d", chainID)
	}

	client, err := NewClient(ctx, chainID, endpoint.URL, endpoint.BlockTime)
	if err != nil {
		return nil, fmt.Errorf("connect rpc for chain %d: %w", chainID, err)
	}
	r.logger.Debug("rpc connected", zap.Uint64("chain_id", chainID))
	r.clients[chainID] = client
	return client, nil
}

// Close closes every dialed client.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, client := range r.clients {
		client.Close()
		delete(r.clients, id)
	}
}
