package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log-only view of an error: the wrap chain plus any
// postgres driver fields found inside it. It never reaches API responses.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump flattens err for structured logging.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.attachDriverFields(err)
	return d
}

// attachDriverFields pulls postgres error details out of the chain. Both
// driver error types are checked since gorm connects through pgx while goose
// and raw SQL paths may surface lib/pq errors.
func (d *ErrorDump) attachDriverFields(err error) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
}
