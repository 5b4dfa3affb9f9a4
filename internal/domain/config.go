package domain

// UserConfig is the per-user workspace configuration.
type UserConfig struct {
	DefaultPersona     string `yaml:"default_persona" json:"default_persona"`
	CustomInstructions string `yaml:"custom_instructions" json:"custom_instructions"`
	AutoCategorise     bool   `yaml:"auto_categorise" json:"auto_categorise"`
	Language           string `yaml:"language" json:"language"`
}

func DefaultUserConfig() UserConfig {
	return UserConfig{DefaultPersona: "", AutoCategorise: true, Language: "en"}
}
