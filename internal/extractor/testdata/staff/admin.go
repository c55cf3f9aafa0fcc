package staff

import "io"

// Person holds identity fields.
type Person struct {
	Name string
}

// Auditor records actions.
type Auditor interface {
	Record(action string)
}

// Admin embeds a person, an auditor and a writer.
type Admin struct {
	Person
	Auditor
	*io.PipeWriter
	level int
}
