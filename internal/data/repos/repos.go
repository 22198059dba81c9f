package repos

import (
	"gorm.io/gorm"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos/catalog"
	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos/quiz"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type QuizSessionRepo = quiz.SessionRepo
type QuizResponseRepo = quiz.ResponseRepo
type PersonalityProfileRepo = quiz.ProfileRepo

type FragranceRepo = catalog.FragranceRepo
type ComputedRecommendation = catalog.ComputedRecommendation
type ManualMatchFilter = catalog.ManualMatchFilter

func NewQuizSessionRepo(db *gorm.DB, baseLog *logger.Logger) QuizSessionRepo {
	return quiz.NewSessionRepo(db, baseLog)
}
func NewQuizResponseRepo(db *gorm.DB, baseLog *logger.Logger) QuizResponseRepo {
	return quiz.NewResponseRepo(db, baseLog)
}
func NewPersonalityProfileRepo(db *gorm.DB, baseLog *logger.Logger) PersonalityProfileRepo {
	return quiz.NewProfileRepo(db, baseLog)
}

func NewFragranceRepo(db *gorm.DB, baseLog *logger.Logger) FragranceRepo {
	return catalog.NewFragranceRepo(db, baseLog)
}
