package embedding

// ClipConfig locates the CLIP ONNX exports and sets tensor sizes.
type ClipConfig struct {
	VisualModelPath string
	TextModelPath   string
	VocabPath       string
	Dimensions      int
	MaxTokens       int
	ImageSize       int
}

func (c ClipConfig) withDefaults() ClipConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = 512
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 77
	}
	if c.ImageSize <= 0 {
		c.ImageSize = 224
	}
	return c
}
