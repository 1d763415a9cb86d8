package models

// Domain lists the tables owned by the application, parents before children.
func Domain() []interface{} {
	return []interface{}{
		&User{},
		&College{},
		&CollegeBudget{},
		&Project{},
		&Event{},
		&AuditLog{},
	}
}
