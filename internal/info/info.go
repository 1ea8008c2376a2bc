// Package info surfaces the module's counters and configuration through
// the host's info hook, plus the supplemental spill.info command that
// returns the same data as a flat reply.
package info

import (
	"context"
	"strconv"

	"github.com/spillmod/spilltier/config"
	"github.com/spillmod/spilltier/internal/host"
	"github.com/spillmod/spilltier/internal/stats"
)

// Provider assembles the module's stats and config sections on demand.
// Grounded on internal/telemetry/sampler.go's snapshot pattern (collect
// every subsystem's counters into one flat structure); no delta is needed
// here since the host consumes cumulative counters directly rather than a
// periodic log line.
type Provider struct {
	stats *stats.Stats
	cfg   *config.Config
}

func New(sts *stats.Stats, cfg *config.Config) *Provider {
	return &Provider{stats: sts, cfg: cfg}
}

// Hook implements host.InfoHook. All reads are plain atomic loads via
// stats.Stats.Snapshot; it never takes a lock that could contend with the
// spill, restore or sweeper paths.
func (p *Provider) Hook(ctx context.Context) (statsFields, configFields []host.InfoField) {
	return p.statsFields(), p.configFields()
}

func (p *Provider) statsFields() []host.InfoField {
	s := p.stats.Snapshot()
	return []host.InfoField{
		{Name: "num_keys_stored", Value: strconv.FormatInt(s.NumKeysStored, 10)},
		{Name: "total_keys_written", Value: strconv.FormatUint(s.TotalKeysWritten, 10)},
		{Name: "total_keys_restored", Value: strconv.FormatUint(s.TotalKeysRestored, 10)},
		{Name: "total_keys_cleaned", Value: strconv.FormatUint(s.TotalKeysCleaned, 10)},
		{Name: "last_num_keys_cleaned", Value: strconv.FormatUint(s.LastNumKeysCleaned, 10)},
		{Name: "last_cleanup_at", Value: strconv.FormatInt(s.LastCleanupAt, 10)},
		{Name: "total_bytes_written", Value: strconv.FormatUint(s.TotalBytesWritten, 10)},
		{Name: "total_bytes_read", Value: strconv.FormatUint(s.TotalBytesRead, 10)},
		{Name: "total_materialize_failures", Value: strconv.FormatUint(s.MaterializeFailures, 10)},
	}
}

func (p *Provider) configFields() []host.InfoField {
	return []host.InfoField{
		{Name: "path", Value: p.cfg.Path},
		{Name: "max_memory_bytes", Value: strconv.FormatInt(p.cfg.MaxMemory, 10)},
		{Name: "cleanup_interval_seconds", Value: strconv.FormatInt(p.cfg.CleanupIntervalSeconds, 10)},
	}
}

// Command implements the supplemental spill.info command, grounded on
// infcache.c's StatsCommand/infcache.stats (the module's own counters
// flattened into name/value pairs) rather than InfoCommand/INFCACHE.INFO,
// which in the original just proxies the storage engine's raw stats blob
// and has no analog here. Returns the same stats+config fields as Hook.
func (p *Provider) Command(ctx context.Context, args [][]byte) host.Reply {
	fields := append(p.statsFields(), p.configFields()...)
	items := make([]host.Reply, 0, 2*len(fields))
	for _, f := range fields {
		items = append(items, host.Bulk(f.Name), host.Bulk(f.Value))
	}
	return host.Array(items...)
}
