package model

// swagger:model Subject
type Subject struct {
	BaseModel
	Name        string `gorm:"size:100;unique;not null" json:"name"`
	Code        string `gorm:"size:30" json:"code"`
	Description string `gorm:"type:text" json:"description"`
	CreatedByID uint   `gorm:"index;type:bigint unsigned" json:"createdById"`
}

func (Subject) TableName() string {
	return "subjects"
}

// SubjectEnrollment links a student to a subject. Starting an adaptive exam
// requires an enrollment in the exam's subject.
type SubjectEnrollment struct {
	BaseModel
	SubjectID uint `gorm:"index:idx_subject_user,unique;type:bigint unsigned" json:"subjectId"`
	UserID    uint `gorm:"index:idx_subject_user,unique;type:bigint unsigned" json:"userId"`
}

func (SubjectEnrollment) TableName() string {
	return "subject_enrollments"
}
