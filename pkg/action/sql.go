package action

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/aretw0/botfactory/pkg/sqlguard"
)

// Result shaping modes of sql_query.
const (
	ModeRows    = "rows"
	ModeScalar  = "scalar"
	ModeFlatten = "flatten"
)

type sqlParams struct {
	SQL       string `mapstructure:"sql"`
	ResultVar string `mapstructure:"result_var"`
	Mode      string `mapstructure:"mode"`
	Scalar    bool   `mapstructure:"scalar"`
	Flatten   bool   `mapstructure:"flatten"`
}

func (p sqlParams) mode() string {
	switch {
	case p.Mode != "":
		return p.Mode
	case p.Scalar:
		return ModeScalar
	case p.Flatten:
		return ModeFlatten
	default:
		return ModeRows
	}
}

var namedParamRe = regexp.MustCompile(`[:@$]([A-Za-z_][A-Za-z0-9_]*)`)

// bindArgs builds the named arguments a statement references from the context plus the
// authoritative bot_id and user_id. Composite values are bound as JSON.
func (x *Executor) bindArgs(stmt string) ([]any, error) {
	values := make(map[string]any, len(x.vars)+2)
	for k, v := range x.vars {
		values[k] = v
	}
	values["bot_id"] = x.subject.BotID
	values["user_id"] = x.subject.UserID

	seen := make(map[string]bool)
	var args []any
	for _, m := range namedParamRe.FindAllStringSubmatch(stmt, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		v, err := bindable(values[name])
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
		args = append(args, sql.Named(name, v))
	}
	return args, nil
}

func bindable(v any) (any, error) {
	switch v.(type) {
	case nil, string, []byte, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		if n, ok := v.(json.Number); ok {
			return n.String(), nil
		}
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
}

func (x *Executor) sqlQuery(ctx context.Context, raw map[string]any) (Result, error) {
	var p sqlParams
	if err := decode(raw, &p); err != nil {
		return Result{}, err
	}
	if x.engine.db == nil {
		return Result{}, fmt.Errorf("%w: database", ErrNotConfigured)
	}
	if err := sqlguard.Validate(p.SQL, sqlguard.Query); err != nil {
		return Result{}, err
	}
	stmt := sqlguard.AutoLimit(p.SQL)
	args, err := x.bindArgs(stmt)
	if err != nil {
		return Result{}, err
	}

	rows, err := x.engine.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return Result{}, err
	}

	var value any
	switch p.mode() {
	case ModeScalar:
		if len(records) > 0 && len(records[0].values) > 0 {
			value = records[0].values[0]
		}
	case ModeFlatten:
		list := make([]any, 0, len(records))
		for _, r := range records {
			if len(r.values) > 0 {
				list = append(list, r.values[0])
			}
		}
		value = list
	case ModeRows:
		list := make([]any, 0, len(records))
		for _, r := range records {
			list = append(list, r.asMap())
		}
		value = list
	default:
		return Result{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidParams, p.mode())
	}

	if p.ResultVar != "" {
		x.vars[p.ResultVar] = value
	}
	return Result{Kind: ResultNone, Data: map[string]any{"rows": len(records)}}, nil
}

type record struct {
	columns []string
	values  []any
}

func (r record) asMap() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

func scanRows(rows *sql.Rows) ([]record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, record{columns: columns, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (x *Executor) sqlExec(ctx context.Context, raw map[string]any) (res Result, err error) {
	var p sqlParams
	if err := decode(raw, &p); err != nil {
		return Result{}, err
	}
	if x.engine.db == nil {
		return Result{}, fmt.Errorf("%w: database", ErrNotConfigured)
	}
	if err := sqlguard.Validate(p.SQL, sqlguard.Exec); err != nil {
		return Result{}, err
	}
	args, err := x.bindArgs(p.SQL)
	if err != nil {
		return Result{}, err
	}

	tx, err := x.engine.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				x.engine.logger.Warn("rollback failed", "err", rbErr)
			}
		}
	}()

	out, err := tx.ExecContext(ctx, p.SQL, args...)
	if err != nil {
		return Result{}, fmt.Errorf("exec: %w", err)
	}
	affected, err := out.RowsAffected()
	if err != nil {
		return Result{}, fmt.Errorf("rows affected: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}

	if p.ResultVar != "" {
		x.vars[p.ResultVar] = affected
	}
	return Result{Kind: ResultNone, Data: map[string]any{"affected": affected}}, nil
}
