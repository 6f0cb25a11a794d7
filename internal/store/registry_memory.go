package store

import (
	"context"
	"sync"
	"time"

	"plantwise/internal/models"
)

// MemoryPlantRegistry keeps profiles in insertion order for the lifetime of
// the session.
type MemoryPlantRegistry struct {
	mu             sync.RWMutex
	plants         []models.PlantProfile
	nextID         uint
	duplicateCheck bool
}

func NewMemoryPlantRegistry(duplicateCheck bool) *MemoryPlantRegistry {
	return &MemoryPlantRegistry{nextID: 1, duplicateCheck: duplicateCheck}
}

func (r *MemoryPlantRegistry) Add(_ context.Context, p *models.PlantProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.duplicateCheck {
		for _, existing := range r.plants {
			if existing.Name == p.Name && existing.LastWatered.Equal(p.LastWatered) {
				return ErrDuplicatePlant
			}
		}
	}

	p.ID = r.nextID
	r.nextID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Derive(time.Now().UTC())
	r.plants = append(r.plants, *p)
	return nil
}

func (r *MemoryPlantRegistry) List(_ context.Context) ([]models.PlantProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	out := make([]models.PlantProfile, len(r.plants))
	copy(out, r.plants)
	for i := range out {
		out[i].Derive(now)
	}
	return out, nil
}

func (r *MemoryPlantRegistry) Get(_ context.Context, id uint) (models.PlantProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plants {
		if p.ID == id {
			p.Derive(time.Now().UTC())
			return p, nil
		}
	}
	return models.PlantProfile{}, ErrNotFound
}

func (r *MemoryPlantRegistry) Update(_ context.Context, id uint, patch models.PlantPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.plants {
		if r.plants[i].ID != id {
			continue
		}
		if patch.WateringPlan != nil {
			r.plants[i].WateringPlan = *patch.WateringPlan
		}
		if patch.PredictedNextWatering != nil {
			r.plants[i].PredictedNextWatering = *patch.PredictedNextWatering
		}
		if patch.PrognosedMoisture != nil {
			r.plants[i].PrognosedMoisture = *patch.PrognosedMoisture
		}
		if patch.CurrentMoisture != nil {
			r.plants[i].CurrentMoisture = *patch.CurrentMoisture
		}
		if patch.LastWatered != nil {
			r.plants[i].LastWatered = *patch.LastWatered
		}
		return nil
	}
	return ErrNotFound
}

func (r *MemoryPlantRegistry) Delete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.plants {
		if r.plants[i].ID == id {
			r.plants = append(r.plants[:i], r.plants[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
