package household

import "errors"

// TagBinding maps a physical NFC tag to a (person, medication) pair.
type TagBinding struct {
	TagID        string `json:"tag_id"`
	PersonID     string `json:"person_id"`
	MedicationID string `json:"medication_id"`
}

// Validate checks binding invariants.
func (b TagBinding) Validate() error {
	if b.TagID == "" {
		return errors.New("tag binding: empty tag id")
	}
	if b.PersonID == "" {
		return errors.New("tag binding: empty person id")
	}
	if b.MedicationID == "" {
		return errors.New("tag binding: empty medication id")
	}
	return nil
}

// TagResolver resolves a scanned tag id to its bound pair.
type TagResolver interface {
	Resolve(tagID string) (TagBinding, bool)
}

// StaticTagResolver is a config-backed TagResolver.
type StaticTagResolver struct {
	bindings map[string]TagBinding
}

// NewStaticTagResolver builds a resolver from a binding list.
func NewStaticTagResolver(bindings []TagBinding) *StaticTagResolver {
	byTag := make(map[string]TagBinding, len(bindings))
	for _, binding := range bindings {
		if binding.TagID == "" {
			continue
		}
		byTag[binding.TagID] = binding
	}
	return &StaticTagResolver{bindings: byTag}
}

// Resolve implements TagResolver.
func (r *StaticTagResolver) Resolve(tagID string) (TagBinding, bool) {
	if r == nil || tagID == "" {
		return TagBinding{}, false
	}
	binding, ok := r.bindings[tagID]
	return binding, ok
}
