package discovery

import (
	"context"

	"github.com/yndnr/memmesh-go/internal/federation/domain"
)

// Source produces peer candidates from one discovery method.
//
// A source that holds network resources may additionally implement
// io.Closer; the discovery service closes it when the service stops.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Priority ranks the source; lower is stronger.
	Priority() int

	// Discover returns the currently known candidates. It must be
	// safe to call repeatedly and from the discovery cycle goroutine.
	Discover(ctx context.Context) ([]domain.DiscoveryRecord, error)
}
