package metrics

import (
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// RegisterDB exports the database/sql pool statistics of db, labelled with the dialect
// name. Stats are read at scrape time. Registering the same dialect twice is a no-op.
func RegisterDB(db *sql.DB, dialect string) error {
	err := Registry.Register(collectors.NewDBStatsCollector(db, dialect))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
