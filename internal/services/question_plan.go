package services

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
)

const questionPlansEnv = "QUIZ_QUESTION_PLANS_YAML"

//go:embed question_plans.yaml
var questionPlansFS embed.FS

type PlanQuestion struct {
	ID      string   `yaml:"id" json:"id"`
	Prompt  string   `yaml:"prompt" json:"prompt"`
	Multi   bool     `yaml:"multi" json:"multi"`
	Options []string `yaml:"options" json:"options"`
}

type QuestionPlan struct {
	Level     string         `yaml:"-" json:"experience_level"`
	UIMode    string         `yaml:"ui_mode" json:"ui_mode"`
	Questions []PlanQuestion `yaml:"questions" json:"questions"`
}

type yamlQuestionPlans struct {
	Version int                      `yaml:"version"`
	Plans   map[string]*QuestionPlan `yaml:"plans"`
}

// QuestionPlans holds one plan per experience level.
type QuestionPlans struct {
	plans map[string]*QuestionPlan
}

// LoadQuestionPlans reads the file named by QUIZ_QUESTION_PLANS_YAML, or the embedded plans.
func LoadQuestionPlans() (*QuestionPlans, error) {
	if path := strings.TrimSpace(os.Getenv(questionPlansEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read question plans: %w", err)
		}
		return ParseQuestionPlans(raw)
	}
	raw, err := questionPlansFS.ReadFile("question_plans.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded question plans: %w", err)
	}
	return ParseQuestionPlans(raw)
}

func ParseQuestionPlans(raw []byte) (*QuestionPlans, error) {
	var doc yamlQuestionPlans
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse question plans: %w", err)
	}
	out := &QuestionPlans{plans: map[string]*QuestionPlan{}}
	for _, level := range []string{types.ExperienceBeginner, types.ExperienceEnthusiast, types.ExperienceCollector} {
		p := doc.Plans[level]
		if p == nil || len(p.Questions) == 0 {
			return nil, fmt.Errorf("question plan %q missing or empty", level)
		}
		seen := map[string]struct{}{}
		for i, q := range p.Questions {
			if strings.TrimSpace(q.ID) == "" {
				return nil, fmt.Errorf("question plan %q: question %d has no id", level, i)
			}
			if _, dup := seen[q.ID]; dup {
				return nil, fmt.Errorf("question plan %q: duplicate question %q", level, q.ID)
			}
			seen[q.ID] = struct{}{}
			if len(q.Options) == 0 {
				return nil, fmt.Errorf("question plan %q: question %q has no options", level, q.ID)
			}
		}
		p.Level = level
		out.plans[level] = p
	}
	return out, nil
}

// For returns the plan for level, falling back to the beginner plan.
func (q *QuestionPlans) For(level string) *QuestionPlan {
	if p, ok := q.plans[level]; ok {
		return p
	}
	return q.plans[types.ExperienceBeginner]
}

// FirstOption returns the first presented option of questionID in any plan.
func (q *QuestionPlans) FirstOption(level, questionID string) (string, bool) {
	for _, p := range []*QuestionPlan{q.For(level), q.plans[types.ExperienceEnthusiast], q.plans[types.ExperienceCollector]} {
		if p == nil {
			continue
		}
		for _, question := range p.Questions {
			if question.ID == questionID {
				return question.Options[0], true
			}
		}
	}
	return "", false
}
