package model

// AIScore is one entry of a question's append-only difficulty history. The
// engine only ever reads the latest row; older rows are kept so a rescore
// never rewrites what a past attempt saw.
// swagger:model AIScore
type AIScore struct {
	BaseModel
	QuestionID string `gorm:"index;type:varchar(36);not null" json:"questionId"`
	Difficulty *int   `json:"difficulty"`
	Reason     string `gorm:"type:text" json:"reason"`
	ModelName  string `gorm:"size:100" json:"modelName"`
}

func (AIScore) TableName() string {
	return "ai_scores"
}
