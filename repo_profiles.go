package proposta

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the users-table repository. The orchestrator treats a
// duplicate-key insert as recoverable; Upsert folds insert and repair into a
// single statement with conflict target id, so no second race exists between
// a failed insert and the fallback update.
type Profiles interface {
	repository.Repository[*Profile]

	Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error)
	CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error)
	Upsert(ctx context.Context, record *Profile, criteria ...repository.UpdateCriteria) (*Profile, error)
	UpsertTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.UpdateCriteria) (*Profile, error)
	Approve(ctx context.Context, id uuid.UUID) (*Profile, error)
	ApproveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Profile, error)
	ListNewestFirst(ctx context.Context) ([]*Profile, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return r.CountTx(ctx, r.db, criteria...)
}

func (r *profiles) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	q := tx.NewSelect().Model((*Profile)(nil))
	for _, c := range criteria {
		q = c(q)
	}
	return q.Count(ctx)
}

func (r *profiles) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return r.GetByEmailTx(ctx, r.db, email)
}

func (r *profiles) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}
	return record, nil
}

func (r *profiles) Upsert(ctx context.Context, record *Profile, criteria ...repository.UpdateCriteria) (*Profile, error) {
	return r.UpsertTx(ctx, r.db, record, criteria...)
}

// UpsertTx writes the profile row in one INSERT ... ON CONFLICT (id) DO
// UPDATE statement. The provider side may have inserted a same-id row via a
// trigger before we get here; the conflict branch reconciles it with the
// values we would have inserted. There is no separate update query, so
// criteria do not apply here.
func (r *profiles) UpsertTx(ctx context.Context, tx bun.IDB, record *Profile, _ ...repository.UpdateCriteria) (*Profile, error) {
	prepareProfileDefaults(record)

	now := time.Now()
	record.UpdatedAt = &now

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("role = EXCLUDED.role").
		Set("is_approved = EXCLUDED.is_approved").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return record, nil
}

func (r *profiles) Approve(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return r.ApproveTx(ctx, r.db, id)
}

func (r *profiles) ApproveTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Profile, error) {
	now := time.Now()
	res, err := tx.NewUpdate().
		Model((*Profile)(nil)).
		Set("is_approved = ?", true).
		Set("updated_at = ?", now).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return r.Repository.GetByIDTx(ctx, tx, id.String())
}

func (r *profiles) ListNewestFirst(ctx context.Context) ([]*Profile, error) {
	var records []*Profile
	err := r.db.NewSelect().
		Model(&records).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *profiles) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return r.DeleteByIDTx(ctx, r.db, id)
}

func (r *profiles) DeleteByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*Profile)(nil)).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func prepareProfileDefaults(record *Profile) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
