package builder

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"entitysql/internal/ormerr"
)

// mysqlNoLimit is the documented way to skip rows without limiting them.
const mysqlNoLimit = "18446744073709551615"

// mysqlHooks reads generated keys back through LAST_INSERT_ID(), which only
// ever reports one value per insert.
type mysqlHooks struct {
	genericHooks
}

func (mysqlHooks) insert(b *StatementBuilder) (string, error) {
	insert, err := b.insertInto("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnInsertProperties()
	if len(refresh) == 0 {
		return insert, nil
	}

	generated := b.reg.InsertKeyDatabaseGeneratedProperties()
	if len(generated) > 1 {
		return "", fmt.Errorf("%w: entity %s: MySQL reports a single generated key per insert, found %d",
			ormerr.ErrConfiguration, b.reg.EntityName(), len(generated))
	}
	if key, ok := b.singleGeneratedIntegerKey(); ok {
		return batch(insert, "SELECT LAST_INSERT_ID() AS "+b.DelimitedIdentifier(key.Name())), nil
	}

	keys := b.reg.KeyProperties()
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: %s: reading back refreshed columns after insert", ErrNoPrimaryKey, b.reg.EntityName())
	}
	conds := make([]string, len(keys))
	for i, p := range keys {
		value := b.Parameter(p.Name())
		if len(generated) == 1 && generated[0] == p {
			value = "LAST_INSERT_ID()"
		}
		conds[i] = b.DelimitedIdentifier(p.ColumnName()) + " = " + value
	}
	reselect, err := b.selectWhere(b.RefreshColumnSelection(refresh), strings.Join(conds, " AND "))
	if err != nil {
		return "", err
	}
	return batch(insert, reselect), nil
}

func (mysqlHooks) page(q sq.SelectBuilder, _ bool, skip, limit *int64) sq.SelectBuilder {
	switch {
	case skip != nil && limit != nil:
		return q.Suffix(fmt.Sprintf("LIMIT %d, %d", *skip, *limit))
	case skip != nil:
		return q.Suffix(fmt.Sprintf("LIMIT %d, %s", *skip, mysqlNoLimit))
	default:
		return q.Limit(uint64(*limit))
	}
}

func (mysqlHooks) defaultValues() string { return "() VALUES ()" }
