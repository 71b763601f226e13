package household

import "errors"

// Person is a household member that doses are recorded against.
type Person struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Validate checks person invariants.
func (p Person) Validate() error {
	if p.ID == "" {
		return errors.New("person: empty id")
	}
	if p.Name == "" {
		return errors.New("person: empty name")
	}
	return nil
}
