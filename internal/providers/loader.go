// Package providers loads the bookable provider list, the reference data for
// the scheduling view.
package providers

import (
	"context"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// API is the slice of the backend client the loader needs.
type API interface {
	ListDoctors(ctx context.Context) ([]healthapi.Provider, error)
}

// Loader fetches providers with a fail-soft policy: a fetch failure degrades
// to an empty list so the scheduling view can render "no providers available"
// instead of breaking.
type Loader struct {
	api    API
	logger *logging.Logger
}

func NewLoader(api API, logger *logging.Logger) *Loader {
	if api == nil {
		panic("providers: api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Loader{api: api, logger: logger}
}

// List returns all bookable providers, or an empty list on failure.
func (l *Loader) List(ctx context.Context) []healthapi.Provider {
	out, err := l.api.ListDoctors(ctx)
	if err != nil {
		l.logger.Warn("provider list fetch failed, degrading to empty", "error", err)
		return []healthapi.Provider{}
	}
	if out == nil {
		return []healthapi.Provider{}
	}
	return out
}
