package llm

// ModelConfig selects the model and sampling parameters for one request pattern.
type ModelConfig struct {
	// Name is the model identifier sent to the endpoint.
	Name string `yaml:"name" json:"name"`

	// Temperature is the sampling temperature. Samples drawn with
	// SamplingCount > 1 need a non-zero temperature to differ.
	Temperature float64 `yaml:"temperature" json:"temperature"`

	// MaxTokens caps the completion length. Zero leaves it to the endpoint.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens,omitempty"`

	// TopP is nucleus sampling. Zero leaves it to the endpoint.
	TopP float64 `yaml:"top_p" json:"top_p,omitempty"`
}

// WithDefaults fills an empty model name from fallback.
func (model ModelConfig) WithDefaults(fallback ModelConfig) ModelConfig {
	if model.Name == "" {
		model.Name = fallback.Name
		if model.Temperature == 0 {
			model.Temperature = fallback.Temperature
		}
		if model.MaxTokens == 0 {
			model.MaxTokens = fallback.MaxTokens
		}
		if model.TopP == 0 {
			model.TopP = fallback.TopP
		}
	}
	return model
}
