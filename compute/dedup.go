package compute

import (
	"github.com/gbl08ma/sqalx"

	"github.com/opencivic/disruptionsto/dataobjects"
)

// ReportDuplicateGroups logs the groups of active disruptions sharing an
// exact title. This is an operator remediation aid for sources with
// unstable external IDs, not part of steady-state deduplication.
func ReportDuplicateGroups(node sqalx.Node) (int, error) {
	groups, err := dataobjects.FindDuplicateGroups(node)
	if err != nil {
		return 0, err
	}
	for _, group := range groups {
		mainLog.Println("Duplicate group with", len(group), "members:", group[0].Title)
		for _, disruption := range group {
			mainLog.Println("  ", disruption.ExternalID, "created", disruption.CreatedAt)
		}
	}
	return len(groups), nil
}

// CleanupResolved deletes inactive disruptions resolved more than daysOld
// days ago. Their archive rows remain untouched.
func CleanupResolved(node sqalx.Node, daysOld int) (int, error) {
	deleted, err := dataobjects.CleanupOldResolved(node, daysOld)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		mainLog.Println("Cleaned up", deleted, "resolved disruptions older than", daysOld, "days")
	}
	return deleted, nil
}
