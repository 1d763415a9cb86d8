package policy

import "wbpmisueso/internal/models"

// MayManageProject reports whether user may charge or finalize project:
// allocators may act on any project, everyone else only on projects they lead.
func MayManageProject(user *models.User, project *models.Project) bool {
	if user == nil || project == nil || user.ID == 0 {
		return false
	}
	if user.HasRole(models.AllocatorRoles...) {
		return true
	}
	return project.LeaderID != nil && *project.LeaderID == user.ID
}
