package models

import "gorm.io/gorm"

type College struct {
	gorm.Model
	Name   string `gorm:"size:255;not null" json:"name"`
	Code   string `gorm:"size:20;uniqueIndex" json:"code"`
	Campus Campus `gorm:"type:varchar(30);not null;default:MAIN" json:"campus"`
}
