package model

import "time"

// AttemptAnswer is append-only: one immutable row per answered question,
// ordered by submission time. ThetaBefore/ThetaAfter capture the ability
// estimate around this answer so the trajectory can be replayed.
// swagger:model AttemptAnswer
type AttemptAnswer struct {
	BaseModel
	AttemptID   string    `gorm:"index:idx_attempt_question,unique;type:varchar(36);not null" json:"attemptId"`
	QuestionID  string    `gorm:"index:idx_attempt_question,unique;type:varchar(36);not null" json:"questionId"`
	ChoiceID    string    `gorm:"type:varchar(36);not null" json:"choiceId"`
	IsCorrect   bool      `json:"isCorrect"`
	ThetaBefore float64   `gorm:"type:decimal(4,2)" json:"thetaBefore"`
	ThetaAfter  float64   `gorm:"type:decimal(4,2)" json:"thetaAfter"`
	PickedAt    time.Time `gorm:"autoCreateTime" json:"pickedAt"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}
