package report

import "fmt"

type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryStudyMaterial  Category = "study_material"
	CategoryTeaching       Category = "teaching"
	CategoryOffice         Category = "office"
	CategoryCleaning       Category = "cleaning"
	CategoryOther          Category = "other"
)

var categoryLabels = map[Category]string{
	CategoryInfrastructure: "Infrastructure",
	CategoryStudyMaterial:  "Study Material",
	CategoryTeaching:       "Teaching",
	CategoryOffice:         "Office / Administration",
	CategoryCleaning:       "Cleaning & Maintenance",
	CategoryOther:          "Other Issues",
}

// categoryDepartments is the default handling department for each category.
var categoryDepartments = map[Category]string{
	CategoryInfrastructure: "estates",
	CategoryStudyMaterial:  "library",
	CategoryTeaching:       "academic_affairs",
	CategoryOffice:         "administration",
	CategoryCleaning:       "housekeeping",
	CategoryOther:          "general",
}

func (c Category) String() string {
	return string(c)
}

func (c Category) IsValid() bool {
	_, ok := categoryLabels[c]
	return ok
}

func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// SuggestedDepartment is where the dispatcher routes a new report of this category.
func (c Category) SuggestedDepartment() string {
	if d, ok := categoryDepartments[c]; ok {
		return d
	}
	return categoryDepartments[CategoryOther]
}

func ParseCategory(raw string) (Category, error) {
	c := Category(canonicalToken(raw))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrValidation, raw)
	}
	return c, nil
}

func Categories() []Category {
	return []Category{
		CategoryInfrastructure,
		CategoryStudyMaterial,
		CategoryTeaching,
		CategoryOffice,
		CategoryCleaning,
		CategoryOther,
	}
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

var urgencyPresentation = map[Urgency]Presentation{
	UrgencyLow:    {Label: "Low", Color: "gray"},
	UrgencyMedium: {Label: "Medium", Color: "blue"},
	UrgencyHigh:   {Label: "High", Color: "orange"},
	UrgencyUrgent: {Label: "Urgent", Color: "red"},
}

func (u Urgency) String() string {
	return string(u)
}

func (u Urgency) IsValid() bool {
	_, ok := urgencyPresentation[u]
	return ok
}

func (u Urgency) Presentation() Presentation {
	if p, ok := urgencyPresentation[u]; ok {
		return p
	}
	return Presentation{Label: string(u), Color: "gray"}
}

// ParseUrgency defaults an empty value to medium, like the submission form does.
func ParseUrgency(raw string) (Urgency, error) {
	t := canonicalToken(raw)
	if t == "" {
		return UrgencyMedium, nil
	}
	u := Urgency(t)
	if !u.IsValid() {
		return "", fmt.Errorf("%w: unknown urgency %q", ErrValidation, raw)
	}
	return u, nil
}

func Urgencies() []Urgency {
	return []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent}
}
