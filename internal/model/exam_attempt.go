package model

import "time"

// ExamAttempt tracks one student's run through an adaptive exam. Theta values
// are stored at 2-decimal precision; CurrentQuestionID is non-null only while
// a question has been presented but not yet answered.
// swagger:model ExamAttempt
type ExamAttempt struct {
	UUIDBase
	ExamID string `gorm:"index;index:idx_attempt_active,unique;type:varchar(36);not null" json:"examId"`
	UserID uint   `gorm:"index;index:idx_attempt_active,unique;type:bigint unsigned;not null" json:"userId"`
	// Active is true while unfinished and NULL afterwards. MySQL unique
	// indexes ignore NULLs, so the index admits one live attempt per student
	// and exam while any number of finished ones.
	Active            *bool      `gorm:"index:idx_attempt_active,unique" json:"-"`
	ThetaStart        float64    `gorm:"type:decimal(4,2)" json:"thetaStart"`
	ThetaEnd          float64    `gorm:"type:decimal(4,2)" json:"thetaEnd"`
	Score             int        `gorm:"default:0" json:"score"`
	CurrentQuestionID *string    `gorm:"type:varchar(36)" json:"currentQuestionId"`
	StartedAt         time.Time  `gorm:"autoCreateTime" json:"startedAt"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`

	Exam            *Exam           `gorm:"foreignKey:ExamID" json:"exam,omitempty"`
	CurrentQuestion *Question       `gorm:"foreignKey:CurrentQuestionID" json:"currentQuestion,omitempty"`
	Answers         []AttemptAnswer `gorm:"foreignKey:AttemptID" json:"answers,omitempty"`
}

func (ExamAttempt) TableName() string {
	return "exam_attempts"
}
