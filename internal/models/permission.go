package models

// Operation names an authorisable action on a resource.
type Operation string

const (
	OpSubjectRead   Operation = "subject.read"
	OpSubjectWrite  Operation = "subject.write"
	OpSubjectDelete Operation = "subject.delete"

	OpTimeSlotRead   Operation = "timeslot.read"
	OpTimeSlotWrite  Operation = "timeslot.write"
	OpTimeSlotDelete Operation = "timeslot.delete"

	OpScheduleRead   Operation = "schedule.read"
	OpScheduleWrite  Operation = "schedule.write"
	OpScheduleDelete Operation = "schedule.delete"

	OpTimetableRead     Operation = "timetable.read"
	OpTimetableWrite    Operation = "timetable.write"
	OpTimetableDelete   Operation = "timetable.delete"
	OpTimetableActivate Operation = "timetable.activate"
	OpTimetableExport   Operation = "timetable.export"
	OpTimetableMine     Operation = "timetable.mine"

	OpUserManage Operation = "user.manage"
	OpUserSelf   Operation = "user.self"
)

var everyone = []UserRole{RoleAdmin, RoleTeacher, RoleStudent, RoleParent}

// capabilities is the (role, operation) allow list. Anything absent is denied.
var capabilities = buildCapabilities(map[Operation][]UserRole{
	OpSubjectRead:   everyone,
	OpSubjectWrite:  {RoleAdmin, RoleTeacher},
	OpSubjectDelete: {RoleAdmin},

	OpTimeSlotRead:   everyone,
	OpTimeSlotWrite:  {RoleAdmin},
	OpTimeSlotDelete: {RoleAdmin},

	OpScheduleRead:   everyone,
	OpScheduleWrite:  {RoleAdmin},
	OpScheduleDelete: {RoleAdmin},

	OpTimetableRead:     everyone,
	OpTimetableWrite:    {RoleAdmin},
	OpTimetableDelete:   {RoleAdmin},
	OpTimetableActivate: {RoleAdmin},
	OpTimetableExport:   {RoleAdmin},
	OpTimetableMine:     {RoleStudent},

	OpUserManage: {RoleAdmin},
	OpUserSelf:   everyone,
})

func buildCapabilities(table map[Operation][]UserRole) map[UserRole]map[Operation]struct{} {
	out := make(map[UserRole]map[Operation]struct{})
	for op, roles := range table {
		for _, role := range roles {
			if out[role] == nil {
				out[role] = make(map[Operation]struct{})
			}
			out[role][op] = struct{}{}
		}
	}
	return out
}

// Can reports whether role may perform op.
func Can(role UserRole, op Operation) bool {
	ops, ok := capabilities[role]
	if !ok {
		return false
	}
	_, allowed := ops[op]
	return allowed
}
