package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPgxPoolMetrics publishes connection pool statistics as gauges,
// sampled from pool.Stat on every scrape.
func RegisterPgxPoolMetrics(pool *pgxpool.Pool) {
	gauges := []struct {
		name string
		help string
		stat func(*pgxpool.Stat) int32
	}{
		{"pgxpool_acquired_conns", "Connections currently checked out of the pool", (*pgxpool.Stat).AcquiredConns},
		{"pgxpool_idle_conns", "Connections sitting idle in the pool", (*pgxpool.Stat).IdleConns},
		{"pgxpool_total_conns", "Connections currently open, idle or acquired", (*pgxpool.Stat).TotalConns},
		{"pgxpool_max_conns", "Upper bound on pool connections", (*pgxpool.Stat).MaxConns},
	}

	for _, g := range gauges {
		stat := g.stat
		prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}, func() float64 {
			return float64(stat(pool.Stat()))
		}))
	}
}
