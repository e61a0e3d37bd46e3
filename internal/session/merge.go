package session

import "github.com/uptime-rewards/internal/models"

// MergeCounters max-merges local progress into the server counters. Total
// and elapsed time take the larger side. The daily counter belongs to the
// side on the newer day; on the same day the larger count wins.
func MergeCounters(server, local models.Counters) models.Counters {
	out := server
	if local.Total > out.Total {
		out.Total = local.Total
	}
	if local.ElapsedMs > out.ElapsedMs {
		out.ElapsedMs = local.ElapsedMs
	}
	switch {
	case local.LastResetAt.After(server.LastResetAt):
		out.Daily = local.Daily
		out.LastResetAt = local.LastResetAt
	case server.LastResetAt.After(local.LastResetAt):
	case local.Daily > out.Daily:
		out.Daily = local.Daily
	}
	return out
}

// Rebase replays the progress made since the last sync on top of server
// counters that an authoritative overwrite replaced. synced is what the
// controller last knew to be stored; local is its current view.
func Rebase(server, local, synced models.Counters) models.Counters {
	out := server
	out.Total = server.Total + nonNegative(local.Total-synced.Total)
	if local.ElapsedMs > out.ElapsedMs {
		out.ElapsedMs = local.ElapsedMs
	}

	if local.LastResetAt.After(synced.LastResetAt) && local.LastResetAt.After(server.LastResetAt) {
		// rolled over locally since the sync: the new day is entirely local
		out.Daily = local.Daily
		out.LastResetAt = local.LastResetAt
		return out
	}
	out.Daily = server.Daily + nonNegative(local.Daily-synced.Daily)
	return out
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
