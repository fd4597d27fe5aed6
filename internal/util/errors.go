package util

import "errors"

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrEmailRegistered        = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrExamNotFound           = errors.New("exam not found")
	ErrExamNotAdaptive        = errors.New("exam is not adaptive")
	ErrExamIsAdaptive         = errors.New("adaptive exams have no fixed question list")
	ErrQuestionNotFound       = errors.New("question not found")
	ErrSubjectNotFound        = errors.New("subject not found")
	ErrNotEnrolled            = errors.New("not enrolled in subject")
	ErrAssignmentNotFound     = errors.New("assignment not found")
	ErrAssignmentExpired      = errors.New("assignment past its due date")
	ErrAttemptInProgress      = errors.New("an unfinished attempt already exists")
	ErrAttemptNotFound        = errors.New("attempt not found")
	ErrAttemptAlreadyFinished = errors.New("attempt already finished")
	ErrQuestionMismatch       = errors.New("question does not match current question")
	ErrChoiceNotFound         = errors.New("choice does not belong to current question")
	ErrNotEnoughQuestions     = errors.New("not enough questions for standard exam")
	ErrAssignmentFailed       = errors.New("next question assignment failed")
	ErrAIDailyLimit           = errors.New("daily AI scoring limit reached")
)
