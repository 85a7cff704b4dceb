package Models

import (
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the record store for the given driver and migrates it.
// Supported drivers are sqlite (default), postgres and mysql.
func Connect(driver, dsn string) (*gorm.DB, error) {
	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}

	connection, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	if err := Migrate(connection); err != nil {
		return nil, err
	}

	return connection, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(sqliteDSN(dsn)), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Timestamps are scanned into time.Time.
		cfg.ParseTime = true
		return mysql.Open(cfg.FormatDSN()), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "pitstop.db"
	}
	params := []string{}
	if !strings.Contains(dsn, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if !strings.Contains(dsn, "_foreign_keys") {
		params = append(params, "_foreign_keys=on")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func Migrate(db *gorm.DB) error {
	// 1. Master data
	if err := db.AutoMigrate(&Zone{}, &Workstation{}, &Equipment{}); err != nil {
		return fmt.Errorf("migrate master data: %w", err)
	}

	// 2. Workflow records
	if err := db.AutoMigrate(
		&MaintenanceTask{},
		&TaskSubmission{},
		&TaskEvent{},
		&Issue{},
		&IssueComment{},
		&PlacementLog{},
	); err != nil {
		return fmt.Errorf("migrate workflow records: %w", err)
	}

	// 3. Ledgers
	if err := db.AutoMigrate(&ActionRequest{}, &DeviceToken{}); err != nil {
		return fmt.Errorf("migrate ledgers: %w", err)
	}

	return SetupTaskIndexes(db)
}

// SetupTaskIndexes adds the composite indexes that gorm tags do not express.
func SetupTaskIndexes(db *gorm.DB) error {
	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_task_open_due ON maintenance_tasks (status, due_date)",
		"CREATE INDEX IF NOT EXISTS idx_comment_thread ON issue_comments (issue_id, created_at, id)",
	}
	for _, stmt := range statements {
		// MySQL has no IF NOT EXISTS for indexes; a rerun reports a duplicate key name.
		if db.Dialector.Name() == "mysql" {
			stmt = strings.Replace(stmt, "IF NOT EXISTS ", "", 1)
		}
		if err := db.Exec(stmt).Error; err != nil && db.Dialector.Name() != "mysql" {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Venue is the master data supplied by the venue config file.
type Venue struct {
	Name         string           `json:"name"`
	TimeZone     string           `json:"timezone"`
	SharedPoolID string           `json:"shared_pool_id"`
	Zones        []VenueZone      `json:"zones"`
	Equipment    []VenueEquipment `json:"equipment"`
}

type VenueZone struct {
	Name             string             `json:"name"`
	ResponsibleParty string             `json:"responsible_party"`
	Workstations     []VenueWorkstation `json:"workstations"`
}

type VenueWorkstation struct {
	Name             string `json:"name"`
	ResponsibleParty string `json:"responsible_party"`
}

type VenueEquipment struct {
	Name                 string        `json:"name"`
	Type                 EquipmentType `json:"type"`
	Workstation          string        `json:"workstation"`
	CleaningIntervalDays int           `json:"cleaning_interval_days"`
	ThermalIntervalDays  int           `json:"thermal_interval_days"`
}

// SeedVenue creates zones, workstations and equipment that do not exist yet.
// Existing rows are left alone so runtime assignments survive a restart.
// It returns the number of records created.
func SeedVenue(db *gorm.DB, venue Venue) (int, error) {
	created := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		workstationIDs := map[string]uint{}

		for _, vz := range venue.Zones {
			zone := Zone{}
			res := tx.Where(Zone{Name: vz.Name}).
				Attrs(Zone{ResponsibleParty: vz.ResponsibleParty}).
				FirstOrCreate(&zone)
			if res.Error != nil {
				return fmt.Errorf("seed zone %s: %w", vz.Name, res.Error)
			}
			created += int(res.RowsAffected)

			for _, vw := range vz.Workstations {
				ws := Workstation{}
				res := tx.Where(Workstation{Name: vw.Name}).
					Attrs(Workstation{ZoneID: zone.ID, ResponsibleParty: vw.ResponsibleParty}).
					FirstOrCreate(&ws)
				if res.Error != nil {
					return fmt.Errorf("seed workstation %s: %w", vw.Name, res.Error)
				}
				created += int(res.RowsAffected)
				workstationIDs[ws.Name] = ws.ID
			}
		}

		for _, ve := range venue.Equipment {
			var existing int64
			if err := tx.Model(&Equipment{}).Where("name = ?", ve.Name).Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				continue
			}
			eq := Equipment{
				Name:                 ve.Name,
				Type:                 ve.Type,
				Active:               true,
				MaintenanceEnabled:   true,
				CleaningIntervalDays: ve.CleaningIntervalDays,
			}
			if ve.Type.SupportsThermalService() {
				eq.ThermalIntervalDays = ve.ThermalIntervalDays
			}
			if id, ok := workstationIDs[ve.Workstation]; ok {
				eq.WorkstationID = &id
			}
			if err := tx.Create(&eq).Error; err != nil {
				return fmt.Errorf("seed equipment %s: %w", ve.Name, err)
			}
			created++
		}
		return nil
	})
	return created, err
}
