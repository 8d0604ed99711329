package repository

import (
	"database/sql"

	"github.com/allisson/tenantconfig/internal/tenantconfig/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// nullBytes sends JSON as text; JSONB and JSON columns both accept it.
func nullBytes(b []byte) sql.NullString {
	return sql.NullString{String: string(b), Valid: len(b) > 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func fillRecord(record *domain.ConfigRecord, key string, plain, ciphertext, wrappedDek sql.NullString) {
	record.Key = domain.Key(key)
	if plain.Valid {
		record.ValuePlain = []byte(plain.String)
	}
	record.SecretCiphertext = ciphertext.String
	record.WrappedDek = wrappedDek.String
}

func fillGlobalRecord(record *domain.GlobalConfigRecord, plain, ciphertext, wrappedDek sql.NullString) {
	if plain.Valid {
		record.ValuePlain = []byte(plain.String)
	}
	record.SecretCiphertext = ciphertext.String
	record.WrappedDek = wrappedDek.String
}
