package repository

import (
	"errors"

	"github.com/oac-climate/cix-analyzer/internal/model"
	"gorm.io/gorm"
)

// ErrNotFound reports a lookup or delete that matched no evaluation.
var ErrNotFound = errors.New("evaluation not found")

type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db}
}

func (r *EvaluationRepository) Create(eval *model.Evaluation) error {
	return r.db.Create(eval).Error
}

// List returns all evaluations, newest first.
func (r *EvaluationRepository) List() ([]model.Evaluation, error) {
	var evals []model.Evaluation
	err := r.db.Order("created_at DESC").Find(&evals).Error
	return evals, err
}

func (r *EvaluationRepository) FindByID(id string) (*model.Evaluation, error) {
	var eval model.Evaluation
	err := r.db.First(&eval, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &eval, err
}

func (r *EvaluationRepository) DeleteByID(id string) error {
	res := r.db.Delete(&model.Evaluation{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
