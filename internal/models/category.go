package models

import "fmt"

// Category is one of the closed set of performance labels the language
// model may assign. The textual value doubles as the wire label used in
// prompts and response validation, so the match is exact and
// case-sensitive.
type Category string

const (
	CategoryHighPerformer Category = "High Performer"
	CategoryAtRisk        Category = "At Risk"
	CategoryAverage       Category = "Average"
	CategoryImproving     Category = "Improving"
	CategoryEmerging      Category = "Emerging"
	CategoryNeedsReview   Category = "Needs Review"
)

// DefaultCategories is the ordered label set used for prompting and
// validation when no override is configured.
func DefaultCategories() []Category {
	return []Category{
		CategoryHighPerformer,
		CategoryAtRisk,
		CategoryAverage,
		CategoryImproving,
		CategoryEmerging,
		CategoryNeedsReview,
	}
}

// ParseCategory validates a raw label against the allowed set.
func ParseCategory(raw string, allowed []Category) (Category, error) {
	for _, c := range allowed {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("category %q not in allowed set", raw)
}

// Classification is the terminal per-student outcome of the batch
// classifier. Every student that enters the pipeline ends with exactly
// one Classification, falling back to Needs Review when the model
// never produced a valid response.
type Classification struct {
	Category Category `json:"category"`
	Report   string   `json:"report"`
}
