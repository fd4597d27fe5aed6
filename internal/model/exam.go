package model

// swagger:model Exam
type Exam struct {
	UUIDBase
	Title      string `gorm:"size:255;not null" json:"title"`
	IsAdaptive bool   `gorm:"default:false" json:"isAdaptive"`
	// IsPublic opens the exam to every student, bypassing enrollment.
	IsPublic      bool   `gorm:"default:false;index" json:"isPublic"`
	QuestionCount int    `gorm:"default:10" json:"questionCount"`
	DifficultyMin int    `gorm:"default:1" json:"difficultyMin"`
	DifficultyMax int    `gorm:"default:5" json:"difficultyMax"`
	SubjectID     *uint  `gorm:"index;type:bigint unsigned" json:"subjectId"`
	CreatedByID   uint   `gorm:"index;type:bigint unsigned" json:"createdById"`

	SubjectRef *Subject `gorm:"foreignKey:SubjectID" json:"subjectRef,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// ExamQuestion is the fixed linkage used by standard (non-adaptive) exams.
// Adaptive exams never touch it; their sequence is chosen per answer.
type ExamQuestion struct {
	BaseModel
	ExamID     string `gorm:"index:idx_exam_question,unique;type:varchar(36);not null" json:"examId"`
	QuestionID string `gorm:"index:idx_exam_question,unique;type:varchar(36);not null" json:"questionId"`
	Order      int    `gorm:"column:sort_order;default:0" json:"order"`
}

func (ExamQuestion) TableName() string {
	return "exam_questions"
}
