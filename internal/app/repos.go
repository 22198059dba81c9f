package app

import (
	"gorm.io/gorm"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type Repos struct {
	QuizSession        repos.QuizSessionRepo
	QuizResponse       repos.QuizResponseRepo
	PersonalityProfile repos.PersonalityProfileRepo
	Fragrance          repos.FragranceRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		QuizSession:        repos.NewQuizSessionRepo(db, log),
		QuizResponse:       repos.NewQuizResponseRepo(db, log),
		PersonalityProfile: repos.NewPersonalityProfileRepo(db, log),
		Fragrance:          repos.NewFragranceRepo(db, log),
	}
}
