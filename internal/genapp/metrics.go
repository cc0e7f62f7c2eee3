package genapp

import (
	"io"
	"slices"

	"github.com/spf13/cast"
)

// WriteMetrics prints the statement metrics gathered so far, one line per
// metric in name order. It prints nothing when metrics are disabled.
func (a *App) WriteMetrics(w io.Writer) error {
	a.stateMu.Lock()
	mp := a.meterProvider
	a.stateMu.Unlock()
	if mp == nil {
		return nil
	}

	snapshot, err := mp.Snapshot()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	slices.Sort(names)

	ew := &errWriter{w: w}
	for _, name := range names {
		ew.printf("-- metric %s = %s\n", name, cast.ToString(snapshot[name]))
	}
	return ew.err
}
