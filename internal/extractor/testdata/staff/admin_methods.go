package staff

// Promote raises the admin level.
func (a *Admin) Promote(by int) (int, error) {
	a.level += by
	a.Record("promote")
	return a.level, nil
}

// Demote is declared on the value receiver.
func (a Admin) Demote() {}
