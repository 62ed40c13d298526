package repository

import "database/sql"

// Repositories bundles one implementation of every store the services use.
type Repositories struct {
	Datasets     DatasetRepositoryInterface
	Templates    TemplateRepositoryInterface
	Runs         RunRepositoryInterface
	Certificates CertificateRepositoryInterface
	Campaigns    CampaignRepositoryInterface
}

// NewPostgres wires every repository to the same connection pool.
func NewPostgres(db *sql.DB) *Repositories {
	return &Repositories{
		Datasets:     &DatasetRepository{DB: db},
		Templates:    &TemplateRepository{DB: db},
		Runs:         &RunRepository{DB: db},
		Certificates: &CertificateRepository{DB: db},
		Campaigns:    &CampaignRepository{DB: db},
	}
}

// NewMemory wires every repository to one shared in-memory store.
func NewMemory() *Repositories {
	return NewMemoryStore().Repositories()
}
