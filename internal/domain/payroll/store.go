package payroll

import (
	cryptoutil "nomina/internal/platform/crypto"
	"nomina/internal/platform/querier"
)

type Store struct {
	DB     querier.Querier
	Crypto *cryptoutil.Service
}

func NewStore(db querier.Querier, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, Crypto: crypto}
}
