package access

// Rights is a bitmask of scheduling permissions held by a caller.
type Rights uint64

const (
	// ManageOwnTasks allows managing tasks owned by the caller.
	ManageOwnTasks Rights = 1 << iota
	// ManageUserTasks allows managing any non-system task.
	ManageUserTasks
	// ManageAllTasks allows managing every task, system tasks included.
	ManageAllTasks
)

// AnyScheduling is the set of rights that permit creating tasks at all.
const AnyScheduling = ManageOwnTasks | ManageUserTasks | ManageAllTasks

// SystemUser is the reserved user id for internal platform logic.
const SystemUser uint32 = 0

// Any reports whether r holds at least one of the given bits.
func (r Rights) Any(bits Rights) bool { return r&bits != 0 }

// Contains reports whether r holds every bit of required.
func (r Rights) Contains(required Rights) bool { return r&required == required }

// CanManage decides whether a caller may read or mutate a task with the
// given owner and system flag.
func CanManage(owner uint32, system bool, userID uint32, rights Rights) bool {
	if userID == SystemUser || rights.Any(ManageAllTasks) {
		return true
	}
	if rights.Any(ManageUserTasks) && !system {
		return true
	}
	if rights.Any(ManageOwnTasks) && owner == userID {
		return true
	}
	return false
}
