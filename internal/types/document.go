package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxSkillGroups is the exclusive upper bound on skill groups in a generated document.
const DefaultMaxSkillGroups = 6

// SkillGroup is a named group of skill keywords.
type SkillGroup struct {
	GroupName string   `json:"group" validate:"required"`
	Keywords  []string `json:"keywords" validate:"required,min=1"`
}

// GeneratedDocument is the structured result produced by the generation service.
// JSON field names follow the structured-output contract given to the model.
type GeneratedDocument struct {
	EmployerName     string       `json:"companyName" validate:"required"`
	RoleTitle        string       `json:"roleTitle" validate:"required"`
	DeveloperTitle   string       `json:"developerTitle"`
	Summary          string       `json:"summary"`
	SkillGroups      []SkillGroup `json:"skills" validate:"dive"`
	ExperienceFirst  []string     `json:"experience_first" validate:"required,min=1"`
	ExperienceSecond []string     `json:"experience_second" validate:"required,min=1"`
	ExperienceThird  []string     `json:"experience_third" validate:"required,min=1"`
}

// ExperienceBlocks returns the three experience bullet lists in document order.
func (d *GeneratedDocument) ExperienceBlocks() [3][]string {
	return [3][]string{d.ExperienceFirst, d.ExperienceSecond, d.ExperienceThird}
}

// Validate checks struct constraints and that the document has fewer than
// maxSkillGroups skill groups. A non-positive maxSkillGroups uses the default.
func (d *GeneratedDocument) Validate(maxSkillGroups int) error {
	validate := validator.New()
	if err := validate.Struct(d); err != nil {
		return err
	}
	if maxSkillGroups <= 0 {
		maxSkillGroups = DefaultMaxSkillGroups
	}
	if len(d.SkillGroups) >= maxSkillGroups {
		return fmt.Errorf("skills: %d groups, must be fewer than %d", len(d.SkillGroups), maxSkillGroups)
	}
	return nil
}
