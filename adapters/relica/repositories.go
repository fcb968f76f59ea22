package relica

import (
	"database/sql"

	"github.com/coregx/fanout"
)

// DefaultTablePrefix matches the table names created by fanout.MigrationFiles.
const DefaultTablePrefix = "fanout_"

// Repositories holds all repository implementations.
type Repositories struct {
	Notification fanout.NotificationRepository
	HelpAlert    fanout.HelpAlertRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Notification: NewNotificationRepository(db, driverName),
		HelpAlert:    NewHelpAlertRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Notification: NewNotificationRepositoryWithPrefix(db, driverName, prefix),
		HelpAlert:    NewHelpAlertRepositoryWithPrefix(db, driverName, prefix),
	}
}
