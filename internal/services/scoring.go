package services

import (
	"math"
	"sort"
	"strings"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

const defaultIntensity = 0.5

type Answer struct {
	QuestionID  string
	AnswerValue string
}

type Favorite struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Brand string `json:"brand"`
}

// Profile is the computed personality for one set of answers.
type Profile struct {
	Dimensions      Vector
	Intensity       float64
	PrimaryType     string
	SecondaryType   *string
	Confidence      float64
	ExperienceLevel string
	Lifestyle       []string
	Occasions       []string
	Brands          []string
	ResponseCount   int
}

type ScoringEngine interface {
	Score(answers []Answer, level string, favorites []Favorite) Profile
}

type scoringEngine struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

func NewScoringEngine(baseLog *logger.Logger, metrics *observability.Metrics) ScoringEngine {
	return &scoringEngine{
		log:     baseLog.With("service", "ScoringEngine"),
		metrics: metrics,
	}
}

func (e *scoringEngine) Score(answers []Answer, level string, favorites []Favorite) Profile {
	if !types.ValidExperienceLevel(level) {
		level = types.ExperienceBeginner
	}
	weights := levelWeights[level]

	var (
		vec         Vector
		intensities []float64
		lifestyle   = map[string]struct{}{}
		occasions   = map[string]struct{}{}
	)
	for _, a := range answers {
		family := routeQuestion(a.QuestionID)
		if family == familyNone {
			continue
		}
		w := weights[family]
		for _, value := range splitAnswer(a.AnswerValue) {
			if family == familyIntensity {
				if v, ok := intensityTable[value]; ok {
					intensities = append(intensities, v)
				}
				continue
			}
			delta, ok := lookupPartial(family, value)
			if !ok {
				continue
			}
			for d, amount := range delta {
				vec[d] += amount * w
			}
			switch family {
			case familyStyle:
				lifestyle[value] = struct{}{}
			case familyOccasion:
				occasions[value] = struct{}{}
			}
		}
	}

	out := Profile{
		Dimensions:      vec,
		Intensity:       defaultIntensity,
		ExperienceLevel: level,
		Lifestyle:       sortedKeys(lifestyle),
		Occasions:       sortedKeys(occasions),
		ResponseCount:   len(answers),
	}
	if len(intensities) > 0 {
		var sum float64
		for _, v := range intensities {
			sum += v
		}
		out.Intensity = clamp01(sum / float64(len(intensities)) * weights[familyIntensity])
	}

	prefix := levelTypePrefix[level]
	primary, secondary := rankDimensions(vec)
	if primary < 0 {
		out.PrimaryType = prefix + defaultPersonalityType
	} else {
		out.PrimaryType = prefix + primary.String()
	}
	if secondary >= 0 {
		name := secondary.String()
		out.SecondaryType = &name
	}

	// Favourites only count for advanced levels, and only as brand tags.
	var favCount int
	if level != types.ExperienceBeginner {
		out.Brands = favoriteBrands(favorites)
		favCount = len(favorites)
	}
	out.Confidence = profileConfidence(len(answers), level, favCount)

	e.metrics.IncProfileScored(level)
	return out
}

func profileConfidence(responses int, level string, favorites int) float64 {
	c := math.Min(float64(responses)/5, 1) +
		levelConfidenceBoost[level] +
		math.Min(float64(favorites)*0.05, 0.15)
	return clamp01(c)
}

// rankDimensions returns the highest and second-highest dimensions, earlier dimensions
// winning ties. primary is -1 for an all-zero vector; secondary is -1 unless at least two
// dimensions are non-zero.
func rankDimensions(v Vector) (primary, secondary Dimension) {
	primary, secondary = -1, -1
	nonZero := 0
	for d := Dimension(0); d < numDimensions; d++ {
		if v[d] != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		return -1, -1
	}
	primary = 0
	for d := Dimension(1); d < numDimensions; d++ {
		if v[d] > v[primary] {
			primary = d
		}
	}
	if nonZero < 2 {
		return primary, -1
	}
	for d := Dimension(0); d < numDimensions; d++ {
		if d == primary {
			continue
		}
		if secondary < 0 || v[d] > v[secondary] {
			secondary = d
		}
	}
	return primary, secondary
}

func routeQuestion(questionID string) questionFamily {
	id := strings.ToLower(questionID)
	for _, r := range familyRoutes {
		if strings.Contains(id, r.fragment) {
			return r.family
		}
	}
	return familyNone
}

func lookupPartial(f questionFamily, value string) (partial, bool) {
	var table map[string]partial
	switch f {
	case familyStyle:
		table = styleTable
	case familyOccasion:
		table = occasionTable
	case familyScent:
		table = scentTable
	case familyComplexity:
		table = complexityTable
	case familyInvestment:
		table = investmentTable
	default:
		return nil, false
	}
	p, ok := table[value]
	return p, ok
}

// splitAnswer normalises a possibly comma separated multi-select answer.
func splitAnswer(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func favoriteBrands(favorites []Favorite) []string {
	seen := map[string]string{}
	for _, f := range favorites {
		b := strings.TrimSpace(f.Brand)
		if b == "" {
			continue
		}
		key := strings.ToLower(b)
		if _, ok := seen[key]; !ok {
			seen[key] = b
		}
	}
	out := make([]string, 0, len(seen))
	for _, b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
