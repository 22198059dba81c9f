package domain

import (
	"github.com/KJJisBetter/scentmatch-sub009/internal/domain/catalog"
	"github.com/KJJisBetter/scentmatch-sub009/internal/domain/quiz"
)

const (
	ExperienceBeginner   = quiz.ExperienceBeginner
	ExperienceEnthusiast = quiz.ExperienceEnthusiast
	ExperienceCollector  = quiz.ExperienceCollector
)

type QuizSession = quiz.QuizSession
type QuizResponse = quiz.QuizResponse
type PersonalityProfile = quiz.PersonalityProfile

type Fragrance = catalog.Fragrance

var ValidExperienceLevel = quiz.ValidExperienceLevel
