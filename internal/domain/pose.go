package domain

import "strings"

// Gender selects the subject the poses are written for.
type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
)

var genderLabels = map[Gender]string{
	GenderFemale: "女生",
	GenderMale:   "男生",
}

// ParseGender maps free-form input onto a supported gender. Unknown values
// fall back to female, matching the upload form default.
func ParseGender(v string) Gender {
	switch Gender(strings.ToLower(strings.TrimSpace(v))) {
	case GenderMale:
		return GenderMale
	default:
		return GenderFemale
	}
}

// Label returns the localized label appended to pose names.
func (g Gender) Label() string {
	if label, ok := genderLabels[g]; ok {
		return label
	}
	return genderLabels[GenderFemale]
}

// PoseCategories is the closed set of categories the language model may use.
var PoseCategories = []string{"经典", "动态", "坐姿", "情感", "艺术", "互动", "时尚", "倚靠"}

// PoseSuggestion is one pose proposed for a scene.
type PoseSuggestion struct {
	Name        string `json:"name" validate:"required,max=64"`
	Description string `json:"description" validate:"required,max=600"`
	Category    string `json:"category"`
}

// PoseVariant is a suggestion joined with its generated illustration.
type PoseVariant struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Image       string `json:"image,omitempty"`
}

// NewPoseVariant attaches an illustration filename to a suggestion.
func NewPoseVariant(p PoseSuggestion, image string) PoseVariant {
	return PoseVariant{
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Image:       image,
	}
}
