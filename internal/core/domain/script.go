package domain

// ScriptModule pairs a user-editable script source with the compiled form the
// sandbox actually loads. Both are persisted together on the owning
// CollectionVersion so the source stays editable after deployment.
type ScriptModule struct {
	Source   string `json:"source"`
	Compiled string `json:"compiled"`
}

// IsZero reports whether the module is absent.
func (m ScriptModule) IsZero() bool {
	return m.Source == "" && m.Compiled == ""
}
