package services

import types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"

type Dimension int

const (
	DimFresh Dimension = iota
	DimFloral
	DimOriental
	DimWoody
	DimFruity
	DimGourmand
	numDimensions
)

var dimensionNames = [numDimensions]string{"fresh", "floral", "oriental", "woody", "fruity", "gourmand"}

func (d Dimension) String() string {
	if d < 0 || d >= numDimensions {
		return "unknown"
	}
	return dimensionNames[d]
}

// Vector holds one accumulator per dimension, in the fixed tie-break order.
type Vector [numDimensions]float64

func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, numDimensions)
	for d := Dimension(0); d < numDimensions; d++ {
		out[d.String()] = v[d]
	}
	return out
}

type questionFamily int

const (
	familyNone questionFamily = iota
	familyStyle
	familyOccasion
	familyScent
	familyIntensity
	familyComplexity
	familyInvestment
)

// familyRoutes maps question id fragments to families. Order matters: the first match wins.
var familyRoutes = []struct {
	fragment string
	family   questionFamily
}{
	{"intensity", familyIntensity},
	{"complexity", familyComplexity},
	{"investment", familyInvestment},
	{"uniqueness", familyInvestment},
	{"budget", familyInvestment},
	{"occasion", familyOccasion},
	{"style", familyStyle},
	{"personality", familyStyle},
	{"lifestyle", familyStyle},
	{"scent", familyScent},
	{"family", familyScent},
	{"note", familyScent},
}

type partial map[Dimension]float64

var styleTable = map[string]partial{
	"casual_relaxed":             {DimFresh: 0.3, DimFruity: 0.2},
	"professional_sophisticated": {DimWoody: 0.3, DimFloral: 0.2},
	"romantic_feminine":          {DimFloral: 0.4, DimFruity: 0.1},
	"bold_confident":             {DimOriental: 0.4, DimWoody: 0.2},
	"natural_earthy":             {DimWoody: 0.3, DimFresh: 0.2},
	"playful_fun":                {DimFruity: 0.3, DimGourmand: 0.2},
	"classic_elegant":            {DimFloral: 0.3, DimWoody: 0.1},
	"edgy_unconventional":        {DimOriental: 0.3, DimWoody: 0.2},
}

var occasionTable = map[string]partial{
	"daily_work":     {DimFresh: 0.3, DimFloral: 0.1},
	"weekend_casual": {DimFresh: 0.2, DimFruity: 0.2},
	"evening_dates":  {DimOriental: 0.3, DimGourmand: 0.2},
	"special_events": {DimOriental: 0.2, DimFloral: 0.2},
	"outdoor_active": {DimFresh: 0.4},
	"cozy_home":      {DimGourmand: 0.3, DimWoody: 0.1},
}

var scentTable = map[string]partial{
	"fresh_clean":     {DimFresh: 0.5},
	"fresh_citrus":    {DimFresh: 0.5},
	"citrus":          {DimFresh: 0.5},
	"floral_romantic": {DimFloral: 0.5},
	"floral":          {DimFloral: 0.5},
	"warm_spicy":      {DimOriental: 0.5},
	"oriental":        {DimOriental: 0.5},
	"woody_earthy":    {DimWoody: 0.5},
	"woody":           {DimWoody: 0.5},
	"fruity_sweet":    {DimFruity: 0.5},
	"fruity":          {DimFruity: 0.5},
	"sweet_gourmand":  {DimGourmand: 0.5},
	"gourmand":        {DimGourmand: 0.5},
	"vanilla":         {DimGourmand: 0.5},
}

// intensityTable maps to the intensity scalar rather than to dimensions.
var intensityTable = map[string]float64{
	"subtle":     0.25,
	"light":      0.25,
	"moderate":   0.5,
	"noticeable": 0.65,
	"strong":     0.85,
	"bold":       0.85,
	"powerful":   0.85,
}

var complexityTable = map[string]partial{
	"simple_clean":     {DimFresh: 0.2},
	"balanced_layered": {DimFloral: 0.1, DimWoody: 0.1},
	"complex_evolving": {DimOriental: 0.2, DimWoody: 0.2},
	"avant_garde":      {DimOriental: 0.3, DimGourmand: 0.1},
}

var investmentTable = map[string]partial{
	"budget_conscious": {DimFresh: 0.1, DimFruity: 0.1},
	"quality_focused":  {DimWoody: 0.2, DimFloral: 0.1},
	"luxury_niche":     {DimOriental: 0.2, DimWoody: 0.2},
	"rare_exclusive":   {DimOriental: 0.3, DimWoody: 0.1},
}

type familyWeights map[questionFamily]float64

var levelWeights = map[string]familyWeights{
	types.ExperienceBeginner: {
		familyStyle:      1.0,
		familyOccasion:   0.8,
		familyScent:      1.2,
		familyIntensity:  1.0,
		familyComplexity: 0.5,
		familyInvestment: 0.5,
	},
	types.ExperienceEnthusiast: {
		familyStyle:      1.0,
		familyOccasion:   1.0,
		familyScent:      1.0,
		familyIntensity:  1.0,
		familyComplexity: 1.0,
		familyInvestment: 0.8,
	},
	types.ExperienceCollector: {
		familyStyle:      0.8,
		familyOccasion:   0.8,
		familyScent:      1.0,
		familyIntensity:  1.2,
		familyComplexity: 1.5,
		familyInvestment: 1.3,
	},
}

var levelTypePrefix = map[string]string{
	types.ExperienceBeginner:   "",
	types.ExperienceEnthusiast: "refined_",
	types.ExperienceCollector:  "sophisticated_",
}

var levelConfidenceBoost = map[string]float64{
	types.ExperienceBeginner:   0,
	types.ExperienceEnthusiast: 0.1,
	types.ExperienceCollector:  0.2,
}

const defaultPersonalityType = "balanced"
