package pipeline

// undoList collects compensating actions for resources created during a
// run. rollback runs them newest first and ignores their errors.
type undoList struct {
	actions []func() error
}

func (u *undoList) add(fn func() error) {
	u.actions = append(u.actions, fn)
}

func (u *undoList) rollback() {
	for i := len(u.actions) - 1; i >= 0; i-- {
		_ = u.actions[i]()
	}
	u.actions = nil
}

func (u *undoList) discard() {
	u.actions = nil
}
