package models

// SpecialistKey identifies a category of support specialist.
type SpecialistKey string

const (
	SpecialistAnxiety    SpecialistKey = "anxiety"
	SpecialistDepression SpecialistKey = "depression"
	SpecialistADHD       SpecialistKey = "adhd"
	SpecialistCareer     SpecialistKey = "career"
)

// SpecialistOption is one selectable specialist category.
type SpecialistOption struct {
	Key         SpecialistKey `json:"key" yaml:"key"`
	Title       string        `json:"title" yaml:"title"`
	Description string        `json:"description" yaml:"description"`
}

// SpecialistOptions lists the four categories in fixed enumeration order.
// The order matters: the recommendation scorer breaks ties by keeping the
// earliest-declared category.
var SpecialistOptions = []SpecialistOption{
	{
		Key:         SpecialistAnxiety,
		Title:       "Anxiety & Stress",
		Description: "Support for anxiety, panic, and chronic worry.",
	},
	{
		Key:         SpecialistDepression,
		Title:       "Depression & Mood",
		Description: "Support for low mood, hopelessness, and loss of motivation.",
	},
	{
		Key:         SpecialistADHD,
		Title:       "ADHD & Focus",
		Description: "Support for attention, organization, and follow-through.",
	},
	{
		Key:         SpecialistCareer,
		Title:       "Career & Burnout",
		Description: "Support for work stress, burnout, and career transitions.",
	},
}

// ValidSpecialistKey reports whether k is one of the four catalog keys.
func ValidSpecialistKey(k SpecialistKey) bool {
	for _, opt := range SpecialistOptions {
		if opt.Key == k {
			return true
		}
	}
	return false
}
