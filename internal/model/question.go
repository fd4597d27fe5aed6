package model

// swagger:model Question
type Question struct {
	UUIDBase
	Subject       string `gorm:"size:100;index;not null" json:"subject"`
	GradeLevel    string `gorm:"size:50;not null" json:"gradeLevel"`
	Body          string `gorm:"type:text;not null" json:"body"`
	Explanation   string `gorm:"type:text" json:"explanation"`
	CreatedByID   uint   `gorm:"index;type:bigint unsigned" json:"createdById"`
	ShouldRescore bool   `gorm:"default:false" json:"shouldRescore"`

	Choices  []Choice  `gorm:"foreignKey:QuestionID" json:"choices,omitempty"`
	AIScores []AIScore `gorm:"foreignKey:QuestionID" json:"aiScores,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// swagger:model Choice
type Choice struct {
	UUIDBase
	QuestionID string `gorm:"index;type:varchar(36);not null" json:"questionId"`
	Text       string `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect"`
	Order      int    `gorm:"column:sort_order;default:0" json:"order"`
}

func (Choice) TableName() string {
	return "choices"
}
