// Package inmemory keeps the server directory in process memory. Useful
// for tests and for callers that manage credentials themselves.
package inmemory

import (
	"context"
	"sync"

	"github.com/jellysync/jellysync/internal/serverdir"
)

type directory struct {
	servers []serverdir.ServerCredentials
	mu      sync.RWMutex
}

func NewDirectory() *directory {
	return &directory{}
}

func (d *directory) Add(_ context.Context, creds serverdir.ServerCredentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	creds.PublicAddress = serverdir.NormalizeAddress(creds.PublicAddress)
	for i, s := range d.servers {
		if s.PublicAddress == creds.PublicAddress {
			d.servers[i] = creds
			return nil
		}
	}
	d.servers = append(d.servers, creds)
	return nil
}

func (d *directory) GetByAddress(_ context.Context, address string) (serverdir.ServerCredentials, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	address = serverdir.NormalizeAddress(address)
	for _, s := range d.servers {
		if s.PublicAddress == address {
			return s, nil
		}
	}
	return serverdir.ServerCredentials{}, serverdir.ErrNotFound
}

func (d *directory) IndexByAddress(_ context.Context, address string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	address = serverdir.NormalizeAddress(address)
	for i, s := range d.servers {
		if s.PublicAddress == address {
			return i, nil
		}
	}
	return -1, serverdir.ErrNotFound
}

func (d *directory) RemoveByAddress(_ context.Context, address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	address = serverdir.NormalizeAddress(address)
	for i, s := range d.servers {
		if s.PublicAddress == address {
			d.servers = append(d.servers[:i], d.servers[i+1:]...)
			return nil
		}
	}
	return serverdir.ErrNotFound
}

func (d *directory) List(_ context.Context) ([]serverdir.ServerCredentials, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]serverdir.ServerCredentials, len(d.servers))
	copy(out, d.servers)
	return out, nil
}
