package services

import (
	"strings"
	"testing"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
)

func TestLoadQuestionPlans_Embedded(t *testing.T) {
	t.Setenv(questionPlansEnv, "")
	plans, err := LoadQuestionPlans()
	if err != nil {
		t.Fatalf("LoadQuestionPlans: %v", err)
	}
	want := map[string]string{
		types.ExperienceBeginner:   "guided",
		types.ExperienceEnthusiast: "standard",
		types.ExperienceCollector:  "advanced",
	}
	for level, mode := range want {
		p := plans.For(level)
		if p.Level != level || p.UIMode != mode {
			t.Fatalf("%s: want mode=%s got level=%s mode=%s", level, mode, p.Level, p.UIMode)
		}
	}
	if p := plans.For("unknown"); p.Level != types.ExperienceBeginner {
		t.Fatalf("unknown level want beginner plan got %s", p.Level)
	}
	if got, ok := plans.FirstOption(types.ExperienceBeginner, "gender_preference"); !ok || got != "women" {
		t.Fatalf("first option want=women got=%q ok=%v", got, ok)
	}
}

func TestQuestionPlans_EveryOptionIsScored(t *testing.T) {
	plans, err := LoadQuestionPlans()
	if err != nil {
		t.Fatalf("LoadQuestionPlans: %v", err)
	}
	for _, level := range []string{types.ExperienceBeginner, types.ExperienceEnthusiast, types.ExperienceCollector} {
		for _, q := range plans.For(level).Questions {
			if strings.Contains(q.ID, "gender") {
				continue
			}
			family := routeQuestion(q.ID)
			if family == familyNone {
				t.Fatalf("%s/%s does not route to a scoring family", level, q.ID)
			}
			for _, opt := range q.Options {
				if family == familyIntensity {
					if _, ok := intensityTable[opt]; !ok {
						t.Fatalf("%s/%s option %s has no intensity", level, q.ID, opt)
					}
					continue
				}
				if _, ok := lookupPartial(family, opt); !ok {
					t.Fatalf("%s/%s option %s has no dimension delta", level, q.ID, opt)
				}
			}
		}
	}
}

func TestParseQuestionPlans_RejectsIncompleteDocument(t *testing.T) {
	raw := []byte(`
plans:
  beginner:
    ui_mode: guided
    questions:
      - id: style_personality
        options: [casual_relaxed]
`)
	if _, err := ParseQuestionPlans(raw); err == nil {
		t.Fatalf("missing levels must be rejected")
	}
}
