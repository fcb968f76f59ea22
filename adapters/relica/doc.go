// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package implements the fanout notification center repositories:
//   - NotificationRepository
//   - HelpAlertRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/fanout"
//	    "github.com/coregx/fanout/adapters/relica"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, err := sql.Open("mysql", "user:pass@tcp(localhost:3306)/fanout?parseTime=true")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := fanout.ApplyMigrations(ctx, db, "mysql"); err != nil {
//	    log.Fatal(err)
//	}
//
//	repos := relica.NewRepositories(db, "mysql")
//
//	center, err := fanout.NewNotificationCenter(
//	    fanout.WithNotificationCenterRepository(repos.Notification),
//	    fanout.WithNotificationCenterLogger(logger),
//	)
package relica
