package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"plantwise/internal/models"
)

// GormPlantRegistry is the durable plant registry, sharing the telemetry
// database so watering plans survive restarts.
type GormPlantRegistry struct {
	db             *gorm.DB
	duplicateCheck bool
}

func NewGormPlantRegistry(db *gorm.DB, duplicateCheck bool) (*GormPlantRegistry, error) {
	if err := db.AutoMigrate(&models.PlantProfile{}); err != nil {
		return nil, fmt.Errorf("migrate plants: %w", err)
	}
	return &GormPlantRegistry{db: db, duplicateCheck: duplicateCheck}, nil
}

func (r *GormPlantRegistry) Add(ctx context.Context, p *models.PlantProfile) error {
	if r.duplicateCheck {
		var count int64
		err := r.db.WithContext(ctx).Model(&models.PlantProfile{}).
			Where("name = ? AND last_watered = ?", p.Name, p.LastWatered).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("duplicate check: %w", err)
		}
		if count > 0 {
			return ErrDuplicatePlant
		}
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("insert plant: %w", err)
	}
	p.Derive(time.Now().UTC())
	return nil
}

func (r *GormPlantRegistry) List(ctx context.Context) ([]models.PlantProfile, error) {
	var plants []models.PlantProfile
	if err := r.db.WithContext(ctx).Order("id asc").Find(&plants).Error; err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	now := time.Now().UTC()
	for i := range plants {
		plants[i].Derive(now)
	}
	return plants, nil
}

func (r *GormPlantRegistry) Get(ctx context.Context, id uint) (models.PlantProfile, error) {
	var p models.PlantProfile
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PlantProfile{}, ErrNotFound
	}
	if err != nil {
		return models.PlantProfile{}, fmt.Errorf("get plant %d: %w", id, err)
	}
	p.Derive(time.Now().UTC())
	return p, nil
}

func (r *GormPlantRegistry) Update(ctx context.Context, id uint, patch models.PlantPatch) error {
	updates := patchToMap(patch)
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.PlantProfile{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update plant %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormPlantRegistry) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.PlantProfile{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete plant %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func patchToMap(patch models.PlantPatch) map[string]interface{} {
	updates := map[string]interface{}{}
	if patch.WateringPlan != nil {
		updates["watering_plan"] = *patch.WateringPlan
	}
	if patch.PredictedNextWatering != nil {
		updates["predicted_next_watering"] = *patch.PredictedNextWatering
	}
	if patch.PrognosedMoisture != nil {
		updates["prognosed_moisture"] = *patch.PrognosedMoisture
	}
	if patch.CurrentMoisture != nil {
		updates["current_moisture"] = *patch.CurrentMoisture
	}
	if patch.LastWatered != nil {
		updates["last_watered"] = *patch.LastWatered
	}
	return updates
}
