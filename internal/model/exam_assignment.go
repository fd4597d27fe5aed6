package model

import "time"

// ExamAssignment is a direct grant: an assigned student may start the exam
// without being enrolled in its subject. One assignment per student and exam.
// swagger:model ExamAssignment
type ExamAssignment struct {
	BaseModel
	ExamID       string     `gorm:"index:idx_exam_student,unique;type:varchar(36);not null" json:"examId"`
	StudentID    uint       `gorm:"index:idx_exam_student,unique;type:bigint unsigned;not null" json:"studentId"`
	AssignedByID uint       `gorm:"index;type:bigint unsigned" json:"assignedById"`
	DueAt        *time.Time `json:"dueAt,omitempty"`

	Exam *Exam `gorm:"foreignKey:ExamID" json:"exam,omitempty"`
}

func (ExamAssignment) TableName() string {
	return "exam_assignments"
}
