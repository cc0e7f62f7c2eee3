package builder

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// sqliteHooks locates the inserted row through last_insert_rowid().
type sqliteHooks struct {
	genericHooks
}

func (sqliteHooks) insert(b *StatementBuilder) (string, error) {
	insert, err := b.insertInto("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnInsertProperties()
	if len(refresh) == 0 {
		return insert, nil
	}
	if key, ok := b.singleGeneratedIntegerKey(); ok {
		return batch(insert, "SELECT last_insert_rowid() AS "+b.DelimitedIdentifier(key.Name())), nil
	}
	reselect, err := b.selectWhere(b.RefreshColumnSelection(refresh), "_ROWID_ = last_insert_rowid()")
	if err != nil {
		return "", err
	}
	return batch(insert, reselect), nil
}

func (sqliteHooks) page(q sq.SelectBuilder, ordered bool, skip, limit *int64) sq.SelectBuilder {
	if limit == nil {
		return q.Suffix(fmt.Sprintf("LIMIT -1 OFFSET %d", *skip))
	}
	return genericHooks{}.page(q, ordered, skip, limit)
}
