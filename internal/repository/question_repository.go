package repository

import (
	"adaptive_exam_backend/internal/model"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) Create(question *model.Question) error {
	return r.DB.Create(question).Error
}

func (r *QuestionRepository) FindByID(id string) (*model.Question, error) {
	var q model.Question
	err := r.DB.Preload("Choices", func(db *gorm.DB) *gorm.DB {
		return db.Order("choices.sort_order asc")
	}).First(&q, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) FindOwned(id string, teacherID uint) (*model.Question, error) {
	var q model.Question
	err := r.DB.Preload("Choices", func(db *gorm.DB) *gorm.DB {
		return db.Order("choices.sort_order asc")
	}).Where("id = ? AND created_by_id = ?", id, teacherID).First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) ListByTeacher(teacherID uint, subject string) ([]model.Question, error) {
	query := r.DB.Preload("Choices", func(db *gorm.DB) *gorm.DB {
		return db.Order("choices.sort_order asc")
	}).Where("created_by_id = ?", teacherID)
	if subject != "" {
		query = query.Where("subject = ?", subject)
	}
	var questions []model.Question
	err := query.Order("created_at asc, id asc").Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) Delete(id string, teacherID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND created_by_id = ?", id, teacherID).Delete(&model.Question{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("question_id = ?", id).Delete(&model.Choice{}).Error; err != nil {
			return err
		}
		return tx.Where("question_id = ?", id).Delete(&model.AIScore{}).Error
	})
}

func (r *QuestionRepository) CountByAuthor(teacherID uint, subject string) (int64, error) {
	query := r.DB.Model(&model.Question{}).Where("created_by_id = ?", teacherID)
	if subject != "" {
		query = query.Where("subject = ?", subject)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// AppendScore adds one entry to the question's difficulty history and clears
// the rescore flag. Existing entries are never touched.
func (r *QuestionRepository) AppendScore(score *model.AIScore) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(score).Error; err != nil {
			return err
		}
		return tx.Model(&model.Question{}).
			Where("id = ?", score.QuestionID).
			Update("should_rescore", false).Error
	})
}

// LatestScores returns the newest difficulty entry per question id. Questions
// without any entry are absent from the map.
func LatestScores(db *gorm.DB, questionIDs []string) (map[string]*int, error) {
	result := make(map[string]*int, len(questionIDs))
	if len(questionIDs) == 0 {
		return result, nil
	}

	var scores []model.AIScore
	err := db.Where("question_id IN ?", questionIDs).
		Order("created_at desc, id desc").
		Find(&scores).Error
	if err != nil {
		return nil, err
	}

	for _, s := range scores {
		if _, seen := result[s.QuestionID]; !seen {
			result[s.QuestionID] = s.Difficulty
		}
	}
	return result, nil
}
