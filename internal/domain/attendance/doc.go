// Package attendance models monthly attendance records and the annual and
// class-level rollups built from them.
//
// # Percentages
//
// A record's percentage is always derived from its two integer counts and is
// never stored. The annual figure is recomputed from summed counts over the
// months that have working days; it is never an average of monthly
// percentages:
//
//	records := map[Month]AttendanceRecord{
//	    January:  MustRecord(January, 4, 2),
//	    February: MustRecord(February, 30, 27),
//	}
//	summary := ComputeAnnualSummary(records) // 29/34 = 85.29...
//
// # Rosters
//
// StudentRosterEntry and RosterSnapshot describe what a roster load has
// fetched so far. Snapshots are values: holders may keep them while a newer
// load runs.
package attendance
