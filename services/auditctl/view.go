package auditctl

import (
	"sort"
	"time"

	"activityaudit/services/audit"
)

// ActionCount is one line of the per-action breakdown.
type ActionCount struct {
	Action audit.Action
	Label  string
	Count  int64
}

// StatsView is the template data for stats.tmpl.
type StatsView struct {
	TotalLogs     int64
	RetentionDays int
	Actions       []ActionCount
}

// ListView is the template data for list.tmpl.
type ListView struct {
	audit.Page
	Offset int
}

// PurgeView is the template data for purge.tmpl.
type PurgeView struct {
	Deleted int64
	Cutoff  time.Time
}

// NewStatsView orders the breakdown by count, largest first, then by tag.
func NewStatsView(s audit.Stats) StatsView {
	v := StatsView{TotalLogs: s.TotalLogs, RetentionDays: s.RetentionDays}
	for action, n := range s.ActionCounts {
		v.Actions = append(v.Actions, ActionCount{Action: action, Label: action.Label(), Count: n})
	}
	sort.Slice(v.Actions, func(i, j int) bool {
		if v.Actions[i].Count != v.Actions[j].Count {
			return v.Actions[i].Count > v.Actions[j].Count
		}
		return v.Actions[i].Action < v.Actions[j].Action
	})
	return v
}
