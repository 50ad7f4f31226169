package tasks

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

const dateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("due_date must be a %s string", dateLayout)
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("due_date must be a %s string", dateLayout)
	}
	d.Time = parsed
	return nil
}

// Task is a todo item owned by exactly one user. The owner is set at
// creation from the verified caller identity and never changes.
type Task struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	Priority    string    `json:"priority"`
	DueDate     *Date     `json:"due_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput is the POST request body. Omitted priority defaults to medium.
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Priority    string  `json:"priority"`
	DueDate     *Date   `json:"due_date"`
}

// ReplaceInput is the PUT request body. Title, completed and priority are
// required; description and due_date may be null.
type ReplaceInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
	Priority    *string `json:"priority"`
	DueDate     *Date   `json:"due_date"`
}

// PatchInput is the PATCH request body. Presence is tracked per field so an
// explicit null can clear description or due_date while an omitted field is
// left untouched.
type PatchInput struct {
	Title       *string
	Description *string
	Completed   *bool
	Priority    *string
	DueDate     *Date

	HasTitle       bool
	HasDescription bool
	HasCompleted   bool
	HasPriority    bool
	HasDueDate     bool
}

func (p *PatchInput) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["title"]; ok {
		p.HasTitle = true
		if err := json.Unmarshal(v, &p.Title); err != nil {
			return err
		}
	}
	if v, ok := raw["description"]; ok {
		p.HasDescription = true
		if err := json.Unmarshal(v, &p.Description); err != nil {
			return err
		}
	}
	if v, ok := raw["completed"]; ok {
		p.HasCompleted = true
		if err := json.Unmarshal(v, &p.Completed); err != nil {
			return err
		}
	}
	if v, ok := raw["priority"]; ok {
		p.HasPriority = true
		if err := json.Unmarshal(v, &p.Priority); err != nil {
			return err
		}
	}
	if v, ok := raw["due_date"]; ok {
		p.HasDueDate = true
		if err := json.Unmarshal(v, &p.DueDate); err != nil {
			return err
		}
	}
	return nil
}
