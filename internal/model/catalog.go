package model

type TaskKind string

const (
	TaskKindUpload       TaskKind = "upload"
	TaskKindConfirmation TaskKind = "confirmation"
	TaskKindTextResponse TaskKind = "text_response"
)

func (k TaskKind) Valid() bool {
	switch k {
	case TaskKindUpload, TaskKindConfirmation, TaskKindTextResponse:
		return true
	}
	return false
}

type TaskDefinition struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Kind        TaskKind `json:"kind" yaml:"kind"`
	Required    bool     `json:"required" yaml:"required"`
}

// DayDefinition is one day of the curriculum. Task order is display order;
// tasks may be completed in any order.
type DayDefinition struct {
	DayNumber   int              `json:"day_number" yaml:"day"`
	Title       string           `json:"title" yaml:"title"`
	Description string           `json:"description" yaml:"description"`
	Tasks       []TaskDefinition `json:"tasks" yaml:"tasks"`
}
