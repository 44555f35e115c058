package proposta

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
	Clients() Clients
	Services() Services
	Proposals() Proposals
}

type mngr struct {
	db        *bun.DB
	profiles  Profiles
	clients   Clients
	services  Services
	proposals Proposals
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:        db,
		profiles:  NewProfilesRepository(db),
		clients:   NewClientsRepository(db),
		services:  NewServicesRepository(db),
		proposals: NewProposalsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.clients == nil {
		return errors.New("repository clients should be initialized")
	}

	if m.services == nil {
		return errors.New("repository services should be initialized")
	}

	if m.proposals == nil {
		return errors.New("repository proposals should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Clients() Clients {
	return m.clients
}

func (m mngr) Services() Services {
	return m.services
}

func (m mngr) Proposals() Proposals {
	return m.proposals
}
