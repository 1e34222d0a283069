package models

// Category is an answer column such as "fruta" or "pais".
type Category struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	IsDefault   bool   `json:"isDefault"`
	Enabled     bool   `json:"enabled"`
	Position    int    `json:"position,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// DefaultPlaceholder is the hint shown in an empty answer input.
func (c Category) DefaultPlaceholder() string {
	return "Escribe una " + c.Slug
}
