package mapview

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"roommap/server/internal/models"
)

// Store is the persisted listing and favorites source.
type Store interface {
	AllListings() ([]models.PropertyRecord, error)
	FavoriteIDs() (map[string]struct{}, error)
}

// Load replaces the engine inputs with the contents of store as a single input
// version. The engine is left untouched when either read fails.
func (e *Engine) Load(store Store) error {
	records, err := store.AllListings()
	if err != nil {
		return fmt.Errorf("failed to load listings: %w", err)
	}
	favorites, err := store.FavoriteIDs()
	if err != nil {
		return fmt.Errorf("failed to load favorites: %w", err)
	}

	e.setInputs(records, favorites)
	e.logger.WithFields(logrus.Fields{
		"listings":  len(records),
		"favorites": len(favorites),
	}).Info("Loaded listings into map engine")
	return nil
}
