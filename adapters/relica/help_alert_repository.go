package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
	"github.com/coregx/relica"
)

// HelpAlertRepository implements fanout.HelpAlertRepository using Relica.
type HelpAlertRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewHelpAlertRepository creates a new HelpAlertRepository with default table prefix.
func NewHelpAlertRepository(sqlDB *sql.DB, driverName string) *HelpAlertRepository {
	return &HelpAlertRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: DefaultTablePrefix}
}

// NewHelpAlertRepositoryWithPrefix creates a new HelpAlertRepository with custom table prefix.
func NewHelpAlertRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *HelpAlertRepository {
	return &HelpAlertRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *HelpAlertRepository) tableName() string {
	return r.tablePrefix + "help_alert"
}

// Load retrieves a help alert by ID.
func (r *HelpAlertRepository) Load(ctx context.Context, id int64) (model.HelpAlert, error) {
	var h model.HelpAlert
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return h, fanout.ErrNoData
	}
	if err != nil {
		return h, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to load help alert", err)
	}
	return h, nil
}

// Save creates or updates a help alert.
func (r *HelpAlertRepository) Save(ctx context.Context, h model.HelpAlert) (model.HelpAlert, error) {
	if h.ID == 0 {
		err := r.db.WithContext(ctx).Model(&h).Table(r.tableName()).Insert()
		if err != nil {
			return h, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to insert help alert", err)
		}
		return h, nil
	}

	err := r.db.WithContext(ctx).Model(&h).Table(r.tableName()).Update()
	if err != nil {
		return h, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to update help alert", err)
	}
	return h, nil
}

// FindRecent retrieves the newest help alerts.
func (r *HelpAlertRepository) FindRecent(ctx context.Context, limit int) ([]model.HelpAlert, error) {
	var alerts []model.HelpAlert
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		OrderBy("created_at DESC").
		Limit(int64(limit)).
		All(&alerts)
	if err != nil {
		return nil, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to find recent help alerts", err)
	}
	if len(alerts) == 0 {
		return nil, fanout.ErrNoData
	}
	return alerts, nil
}
