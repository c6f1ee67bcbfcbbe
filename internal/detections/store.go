// Package detections holds the most recent normalized detection set.
package detections

import (
	"sync/atomic"
	"time"

	"github.com/hyperjump/geoint/internal/models"
)

type snapshot struct {
	features  []models.GeoFeature
	updatedAt time.Time
}

// Store is a single-slot container. Replace swaps the whole set in one atomic store,
// so readers see either the previous or the new set and never block writers.
type Store struct {
	current atomic.Pointer[snapshot]
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&snapshot{features: []models.GeoFeature{}})
	return s
}

// Replace overwrites the stored set with a private copy of features.
func (s *Store) Replace(features []models.GeoFeature) {
	owned := make([]models.GeoFeature, len(features))
	for i, f := range features {
		f.Ring = append([]models.Position(nil), f.Ring...)
		owned[i] = f
	}
	s.current.Store(&snapshot{features: owned, updatedAt: time.Now()})
}

// Latest returns the current set in a feature-collection envelope. The features slice
// is a copy; rings are shared with the store and must be treated as read-only.
func (s *Store) Latest() models.FeatureCollection {
	snap := s.current.Load()
	out := make([]models.GeoFeature, len(snap.features))
	copy(out, snap.features)
	return models.NewFeatureCollection(out)
}

// Len returns the number of stored features.
func (s *Store) Len() int {
	return len(s.current.Load().features)
}

// UpdatedAt returns the time of the last Replace, or the zero time if never replaced.
func (s *Store) UpdatedAt() time.Time {
	return s.current.Load().updatedAt
}
