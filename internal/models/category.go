package models

// CategoryModel groups posts.
type CategoryModel struct {
	Base
	Name        string `json:"name"        gorm:"size:191;uniqueIndex;not null"`
	Slug        string `json:"slug"        gorm:"size:191;uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
	Color       string `json:"color"       gorm:"size:32"`
	Icon        string `json:"icon"        gorm:"size:64"`
}

func (CategoryModel) TableName() string { return "categories" }
