package app

import (
	"fmt"

	"github.com/drivelane/drivelane/internal/funnel/domain"
	"github.com/drivelane/drivelane/internal/funnel/storage/sqlite"
)

// App owns the funnel service and its backing store.
type App struct {
	Service *domain.Service

	store *sqlite.Store
}

// New opens the SQLite store at dbPath and wires the funnel service.
func New(dbPath string) (*App, error) {
	store, err := sqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open funnel store: %w", err)
	}
	return &App{
		Service: domain.NewService(newDomainStoreAdapter(store), nil, nil),
		store:   store,
	}, nil
}

// Close releases the backing store.
func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
