package builder

// postgresHooks folds the read back of refreshed columns into the write
// through RETURNING, for both the fast and the safe insert path.
type postgresHooks struct {
	genericHooks
}

func (postgresHooks) insert(b *StatementBuilder) (string, error) {
	insert, err := b.insertInto("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnInsertProperties()
	if len(refresh) == 0 {
		return insert, nil
	}
	return insert + " RETURNING " + b.RefreshColumnSelection(refresh), nil
}

func (postgresHooks) update(b *StatementBuilder) (string, error) {
	update, err := b.updateByKeys("")
	if err != nil {
		return "", err
	}
	refresh := b.reg.RefreshOnUpdateProperties()
	if len(refresh) == 0 {
		return update, nil
	}
	return update + " RETURNING " + b.RefreshColumnSelection(refresh), nil
}
