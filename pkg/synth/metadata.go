package synth

import "net/http"

// Response headers describing how the audio was produced.
const (
	HeaderTranslated        = "X-Blogtts-Translated"
	HeaderTranslationFailed = "X-Blogtts-Translation-Failed"
	HeaderTruncated         = "X-Blogtts-Truncated"
	HeaderModel             = "X-Blogtts-Model"
	HeaderSpeed             = "X-Blogtts-Speed"
	HeaderStreamFormat      = "X-Blogtts-Stream-Format"
	HeaderResponseFormat    = "X-Blogtts-Response-Format"
)

// Metadata is what the service reported about a synthesis.
type Metadata struct {
	Translated        bool   `json:"translated"`
	TranslationFailed bool   `json:"translation_failed"`
	Truncated         bool   `json:"truncated"`
	Model             string `json:"model,omitempty"`
	Speed             string `json:"speed,omitempty"`
	StreamFormat      string `json:"stream_format,omitempty"`
	ResponseFormat    string `json:"response_format,omitempty"`
}

// ParseMetadata reads the x-blogtts-* headers. Flags are set only by "1".
func ParseMetadata(h http.Header) Metadata {
	return Metadata{
		Translated:        h.Get(HeaderTranslated) == "1",
		TranslationFailed: h.Get(HeaderTranslationFailed) == "1",
		Truncated:         h.Get(HeaderTruncated) == "1",
		Model:             h.Get(HeaderModel),
		Speed:             h.Get(HeaderSpeed),
		StreamFormat:      h.Get(HeaderStreamFormat),
		ResponseFormat:    h.Get(HeaderResponseFormat),
	}
}
