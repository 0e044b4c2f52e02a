// Package store is the sqlx-backed persistence layer over the `report` schema. It
// implements the storage interfaces declared by the schedule, pipeline and history
// packages.
package store

import (
	"github.com/jmoiron/sqlx"
)

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}
