package queue

import (
	"fmt"

	"antrian-klinik/internal/models"
)

var permissions = map[models.Operation][]models.Role{
	models.OpEnqueue:      {models.RoleDesk, models.RoleSpecialist, models.RolePatient},
	models.OpCallNext:     {models.RoleDesk, models.RoleSpecialist},
	models.OpMove:         {models.RoleDesk, models.RoleSpecialist},
	models.OpBulkReorder:  {models.RoleDesk, models.RoleSpecialist},
	models.OpToggleIntake: {models.RoleDesk, models.RoleSpecialist},
	models.OpMarkStatus:   {models.RoleDesk, models.RoleSpecialist},
}

// Authorize checks the role of a caller against an operation. The system
// actor (janitor, replays from ops tooling) may do everything.
func Authorize(actor models.Actor, op models.Operation) error {
	if actor == models.SystemActor {
		return nil
	}
	if actor.ID == "" {
		return fmt.Errorf("%w: actor tidak dikenal", ErrForbidden)
	}
	for _, role := range permissions[op] {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q tidak boleh melakukan %s", ErrForbidden, actor.Role, op)
}
