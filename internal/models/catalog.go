package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DifyApp Dify应用表（目录只读）
type DifyApp struct {
	ID             string                      `gorm:"primaryKey;size:64" json:"id"`
	Name           string                      `gorm:"index" json:"name"`
	MonthlyPrice   decimal.Decimal             `gorm:"column:monthly_price;type:numeric(12,2);not null;default:0" json:"monthly_price"`
	YearlyPrice    decimal.Decimal             `gorm:"column:yearly_price;type:numeric(12,2);not null;default:0" json:"yearly_price"`
	IconType       *string                     `gorm:"column:icon_type" json:"icon_type,omitempty"`
	Icon           *string                     `json:"icon,omitempty"`
	IconBackground *string                     `gorm:"column:icon_background" json:"icon_background,omitempty"`
	IconURL        *string                     `gorm:"column:icon_url" json:"icon_url,omitempty"`
	Description    string                      `json:"description"`
	Mode           DifyAppMode                 `gorm:"size:20" json:"mode"`
	APIKey         *string                     `gorm:"column:api_key;index" json:"-"`
	Tags           datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

func (DifyApp) TableName() string {
	return "qu_dify_apps"
}

// PriceFor 按计费周期取价
func (a *DifyApp) PriceFor(cycle BillingCycle) decimal.Decimal {
	if cycle == BillingCycleYearly {
		return a.YearlyPrice
	}
	return a.MonthlyPrice
}

// Course 课程表（目录只读），ValidityDays 为 0 表示永久有效
type Course struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	Title        string                      `gorm:"index" json:"title"`
	Description  string                      `json:"description"`
	Price        decimal.Decimal             `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	ValidityDays int                         `gorm:"column:validity_days;not null;default:0" json:"validity_days"`
	Tags         datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"tags"`
	CoverImage   *string                     `gorm:"column:cover_image" json:"cover_image,omitempty"`
	PosterURL    *string                     `gorm:"column:poster_url" json:"poster_url,omitempty"`
	Instructor   *string                     `json:"instructor,omitempty"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

func (Course) TableName() string {
	return "qu_courses"
}

// CourseSection 课程章节表
type CourseSection struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CourseID    uint      `gorm:"column:course_id;not null;index" json:"course_id"`
	Title       string    `gorm:"index" json:"title"`
	Duration    int       `gorm:"default:0" json:"duration"` // 秒
	SortOrder   int       `gorm:"column:sort_order;default:0" json:"sort_order"`
	IsFree      bool      `gorm:"column:is_free;default:false" json:"is_free"`
	VideoURL    *string   `gorm:"column:video_url" json:"video_url,omitempty"`
	IsPublished bool      `gorm:"column:is_published;default:false" json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (CourseSection) TableName() string {
	return "qu_course_sections"
}
