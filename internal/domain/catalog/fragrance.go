package catalog

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
)

// Fragrance is a catalog row. Only the columns the quiz pipeline reads are mapped.
type Fragrance struct {
	ID        string `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Name      string `gorm:"column:name;not null" json:"name"`
	BrandName string `gorm:"column:brand_name;not null;index" json:"brand_name"`
	Gender    string `gorm:"column:gender;type:varchar(16);index" json:"gender"`

	// Accords is a JSON array of lower-case accord tags ("citrus", "vanilla", ...).
	Accords datatypes.JSON `gorm:"column:accords;type:jsonb" json:"accords,omitempty"`

	RatingValue     float64 `gorm:"column:rating_value;index" json:"rating_value"`
	RatingCount     int     `gorm:"column:rating_count" json:"rating_count"`
	PopularityScore float64 `gorm:"column:popularity_score" json:"popularity_score"`
	SampleAvailable bool    `gorm:"column:sample_available;index" json:"sample_available"`
	SamplePriceUSD  float64 `gorm:"column:sample_price_usd" json:"sample_price_usd"`
}

func (Fragrance) TableName() string { return "fragrances" }

// AccordList decodes Accords, tolerating empty or malformed payloads.
func (f *Fragrance) AccordList() []string {
	if f == nil || len(f.Accords) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(f.Accords, &out); err != nil {
		return nil
	}
	for i := range out {
		out[i] = strings.ToLower(strings.TrimSpace(out[i]))
	}
	return out
}
