package app

import (
	"gorm.io/gorm"

	readingrepo "github.com/yungbote/readsession-backend/internal/data/repos/reading"
	"github.com/yungbote/readsession-backend/internal/platform/logger"
)

type Repos struct {
	Sessions readingrepo.SessionRepository
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Sessions: readingrepo.NewSessionRepo(db, log),
	}
}
