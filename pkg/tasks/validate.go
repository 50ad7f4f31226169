package tasks

import (
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLen       = 500
	maxDescriptionLen = 5000
)

func validateTitle(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", validationErr("title", "cannot be empty or whitespace")
	}
	if utf8.RuneCountInString(trimmed) > maxTitleLen {
		return "", validationErr("title", "must be at most 500 characters")
	}
	return trimmed, nil
}

func validateDescription(desc *string) error {
	if desc == nil {
		return nil
	}
	if utf8.RuneCountInString(*desc) > maxDescriptionLen {
		return validationErr("description", "must be at most 5000 characters")
	}
	return nil
}

// normalizePriority lowercases the input and checks it against the allowed
// set. Empty input defaults to medium.
func normalizePriority(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return PriorityMedium, nil
	}
	switch p := strings.ToLower(strings.TrimSpace(raw)); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", validationErr("priority", "must be one of: low, medium, high")
	}
}

func (in CreateInput) validate() (CreateInput, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return in, err
	}
	in.Title = title
	if err := validateDescription(in.Description); err != nil {
		return in, err
	}
	priority, err := normalizePriority(in.Priority)
	if err != nil {
		return in, err
	}
	in.Priority = priority
	return in, nil
}

func (in ReplaceInput) validate() (ReplaceInput, error) {
	if in.Title == nil {
		return in, validationErr("title", "is required")
	}
	title, err := validateTitle(*in.Title)
	if err != nil {
		return in, err
	}
	in.Title = &title
	if in.Completed == nil {
		return in, validationErr("completed", "is required")
	}
	if in.Priority == nil {
		return in, validationErr("priority", "is required")
	}
	priority, err := normalizePriority(*in.Priority)
	if err != nil {
		return in, err
	}
	in.Priority = &priority
	if err := validateDescription(in.Description); err != nil {
		return in, err
	}
	return in, nil
}

func (in PatchInput) validate() (PatchInput, error) {
	if in.HasTitle {
		if in.Title == nil {
			return in, validationErr("title", "cannot be null")
		}
		title, err := validateTitle(*in.Title)
		if err != nil {
			return in, err
		}
		in.Title = &title
	}
	if in.HasDescription {
		if err := validateDescription(in.Description); err != nil {
			return in, err
		}
	}
	if in.HasCompleted && in.Completed == nil {
		return in, validationErr("completed", "cannot be null")
	}
	if in.HasPriority {
		if in.Priority == nil {
			return in, validationErr("priority", "cannot be null")
		}
		priority, err := normalizePriority(*in.Priority)
		if err != nil {
			return in, err
		}
		in.Priority = &priority
	}
	return in, nil
}
