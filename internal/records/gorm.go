package records

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"actas-cli/internal/model"
)

type actaRow struct {
	Ref         string         `gorm:"primaryKey;size:255"`
	Year        int            `gorm:"not null;index:idx_actas_period"`
	Term        string         `gorm:"size:32;not null;index:idx_actas_period"`
	SectionID   string         `gorm:"size:64;not null"`
	SubjectID   string         `gorm:"size:64;not null"`
	Nivel       string         `gorm:"size:64"`
	Grado       string         `gorm:"size:64"`
	Seccion     string         `gorm:"size:64"`
	Status      string         `gorm:"size:16;not null;index"`
	Evaluations datatypes.JSON `gorm:"type:jsonb;not null"`
	Students    datatypes.JSON `gorm:"type:jsonb;not null"`
	Grades      datatypes.JSON `gorm:"type:jsonb;not null"`
	Version     int64          `gorm:"not null"`
	UpdatedAt   time.Time
}

func (actaRow) TableName() string { return "actas" }

func toRow(a model.Acta) (actaRow, error) {
	evals, err := json.Marshal(a.Evaluations)
	if err != nil {
		return actaRow{}, err
	}
	students, err := json.Marshal(a.Students)
	if err != nil {
		return actaRow{}, err
	}
	grades, err := json.Marshal(a.Grades)
	if err != nil {
		return actaRow{}, err
	}
	return actaRow{
		Ref: a.Ref, Year: a.Year, Term: a.Term, SectionID: a.SectionID, SubjectID: a.SubjectID,
		Nivel: a.Nivel, Grado: a.Grado, Seccion: a.Seccion, Status: string(a.Status),
		Evaluations: datatypes.JSON(evals), Students: datatypes.JSON(students), Grades: datatypes.JSON(grades),
		Version: a.Version, UpdatedAt: a.UpdatedAt,
	}, nil
}

func (r actaRow) acta() (model.Acta, error) {
	a := model.Acta{
		Ref: r.Ref, Year: r.Year, Term: r.Term, SectionID: r.SectionID, SubjectID: r.SubjectID,
		Nivel: r.Nivel, Grado: r.Grado, Seccion: r.Seccion, Status: model.Status(r.Status),
		Version: r.Version, UpdatedAt: r.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal(r.Evaluations, &a.Evaluations); err != nil {
		return model.Acta{}, errors.Wrapf(err, "decode evaluations of %s", r.Ref)
	}
	if err := json.Unmarshal(r.Students, &a.Students); err != nil {
		return model.Acta{}, errors.Wrapf(err, "decode students of %s", r.Ref)
	}
	if err := json.Unmarshal(r.Grades, &a.Grades); err != nil {
		return model.Acta{}, errors.Wrapf(err, "decode grades of %s", r.Ref)
	}
	if a.Grades == nil {
		a.Grades = model.Grades{}
	}
	return a, nil
}

// Gorm stores actas in one table; grade data lives in jsonb columns.
type Gorm struct {
	db *gorm.DB
}

// OpenPostgres connects with the pgx-backed postgres driver and migrates.
func OpenPostgres(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: dsn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return NewGorm(db)
}

func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&actaRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate actas")
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// List pushes year and status down to SQL; text fields are matched
// case-insensitively by the shared filter afterwards.
func (g *Gorm) List(ctx context.Context, f model.Filter) ([]model.Acta, error) {
	q := g.db.WithContext(ctx).Model(&actaRow{})
	if f.Year != 0 {
		q = q.Where("year = ?", f.Year)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	var rows []actaRow
	if err := q.Order("ref ASC").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list actas")
	}
	out := make([]model.Acta, 0, len(rows))
	for _, r := range rows {
		a, err := r.acta()
		if err != nil {
			return nil, err
		}
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (g *Gorm) Get(ctx context.Context, ref string) (model.Acta, error) {
	var r actaRow
	err := g.db.WithContext(ctx).Where("ref = ?", ref).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Acta{}, model.NotFoundError{Kind: "acta", ID: ref}
	}
	if err != nil {
		return model.Acta{}, errors.Wrapf(err, "get acta %s", ref)
	}
	return r.acta()
}

func (g *Gorm) Create(ctx context.Context, a model.Acta) (bool, error) {
	row, err := toRow(a)
	if err != nil {
		return false, err
	}
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "create acta %s", a.Ref)
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) CompareAndSwap(ctx context.Context, a model.Acta, expected int64) error {
	row, err := toRow(a)
	if err != nil {
		return err
	}
	res := g.db.WithContext(ctx).Model(&actaRow{}).
		Where("ref = ? AND version = ?", a.Ref, expected).
		Updates(map[string]any{
			"status":      row.Status,
			"evaluations": row.Evaluations,
			"grades":      row.Grades,
			"version":     row.Version,
			"updated_at":  row.UpdatedAt,
		})
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update acta %s", a.Ref)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	cur, err := g.Get(ctx, a.Ref)
	if err != nil {
		return err
	}
	return StaleError{Ref: a.Ref, Expected: expected, Current: cur.Version}
}
