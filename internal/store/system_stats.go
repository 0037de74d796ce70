package store

import "context"

// topTalkgroupsSubquery and uploadSourcesSubquery recompute the top-10
// breakdowns straight from the calls table as part of the same upsert round
// trip, rather than threading extra per-ingest arguments through
// upsert_system_stats's (system_id, label?) signature (§4.1).
const topTalkgroupsSubquery = `(SELECT coalesce(jsonb_agg(t), '[]'::jsonb) FROM (
	SELECT talkgroup, count(*) AS count FROM calls WHERE system_id = $1
	GROUP BY talkgroup ORDER BY count DESC LIMIT 10
) t)`

const uploadSourcesSubquery = `(SELECT coalesce(jsonb_agg(s), '[]'::jsonb) FROM (
	SELECT source, count(*) AS count FROM calls WHERE system_id = $1 AND source <> ''
	GROUP BY source ORDER BY count DESC LIMIT 10
) s)`

// UpsertSystemStats bumps a system's counters in a single round trip,
// resetting calls_today/calls_this_hour when the UTC day/hour has rolled
// over since the last write, and refreshing the top_talkgroups/
// upload_sources breakdowns from the calls table. This must be atomic:
// concurrent ingests for the same system must not lose increments (P7).
// label is optional (§4.1's upsert_system_stats(system_id, label?)); an
// empty label leaves the previously stored label untouched.
func (s *Store) UpsertSystemStats(ctx context.Context, systemID, label string) error {
	q := `
INSERT INTO system_stats (system_id, label, total_calls, calls_today, calls_this_hour, last_call_at, stats_day, stats_hour, top_talkgroups, upload_sources)
VALUES ($1, $2, 1, 1, 1, now(), CURRENT_DATE, date_trunc('hour', now()), ` + topTalkgroupsSubquery + `, ` + uploadSourcesSubquery + `)
ON CONFLICT (system_id) DO UPDATE SET
	label = CASE WHEN $2 <> '' THEN $2 ELSE system_stats.label END,
	total_calls = system_stats.total_calls + 1,
	calls_today = CASE WHEN system_stats.stats_day = CURRENT_DATE THEN system_stats.calls_today + 1 ELSE 1 END,
	calls_this_hour = CASE WHEN system_stats.stats_hour = date_trunc('hour', now()) THEN system_stats.calls_this_hour + 1 ELSE 1 END,
	last_call_at = now(),
	stats_day = CURRENT_DATE,
	stats_hour = date_trunc('hour', now()),
	top_talkgroups = ` + topTalkgroupsSubquery + `,
	upload_sources = ` + uploadSourcesSubquery
	_, err := s.Pool.Exec(ctx, q, systemID, label)
	return wrapErr("upsert_system_stats", err)
}

// GetSystemStats fetches the current counters for a system.
func (s *Store) GetSystemStats(ctx context.Context, systemID string) (SystemStats, error) {
	const q = `
SELECT system_id, label, total_calls, calls_today, calls_this_hour, last_call_at, stats_day, stats_hour, top_talkgroups, upload_sources
FROM system_stats WHERE system_id = $1`
	var st SystemStats
	err := s.Pool.QueryRow(ctx, q, systemID).Scan(
		&st.SystemID, &st.Label, &st.TotalCalls, &st.CallsToday, &st.CallsThisHour,
		&st.LastCallAt, &st.StatsDay, &st.StatsHour, &st.TopTalkgroups, &st.UploadSources,
	)
	if err != nil {
		return SystemStats{}, wrapErr("get_system_stats", err)
	}
	return st, nil
}
