// Package serverdir is the directory of media servers the user has
// already authenticated with. The sync engine consults it to verify the
// jellyfinHost announced in a session handshake before accepting the
// session.
package serverdir

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound reports an address with no stored credentials.
var ErrNotFound = errors.New("server not found")

// ServerCredentials identifies one authenticated media server.
type ServerCredentials struct {
	PublicAddress string `json:"publicAddress"`
	ServerID      string `json:"serverId"`
	AccessToken   string `json:"accessToken"`
	UserID        string `json:"userId"`
	UserName      string `json:"userName"`
}

// Directory stores server credentials keyed by public address. Adding an
// address that already exists replaces its credentials.
type Directory interface {
	Add(ctx context.Context, creds ServerCredentials) error
	GetByAddress(ctx context.Context, address string) (ServerCredentials, error)
	// IndexByAddress returns the position of the server in insertion
	// order, or -1 with ErrNotFound.
	IndexByAddress(ctx context.Context, address string) (int, error)
	RemoveByAddress(ctx context.Context, address string) error
	List(ctx context.Context) ([]ServerCredentials, error)
}

// NormalizeAddress canonicalizes a server address for comparison.
func NormalizeAddress(address string) string {
	return strings.TrimRight(strings.TrimSpace(address), "/")
}
