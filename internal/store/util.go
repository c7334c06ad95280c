package store

import "gorm.io/gorm/clause"

func gormOnConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{DoNothing: true}
}
