package domain

import "time"

// Attachment is an optional binary blob sent along with a render request
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// JobRequest is the payload of one submission attempt.
// It is built once and never mutated afterwards.
type JobRequest struct {
	Images             []string
	ProductTitle       string
	ProductDescription string
	DurationSeconds    int
	VoiceGender        string
	ScriptTone         string
	VideoTheme         string
	CustomScript       string
	UserVoiceAudio     *Attachment // overrides VoiceGender synthesis when present
	BackgroundMusic    *Attachment
	ShopIdentifier     string
}

// WithDefaults fills empty scalar fields with the storefront defaults
func (r JobRequest) WithDefaults() JobRequest {
	if r.DurationSeconds == 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	if r.VoiceGender == "" {
		r.VoiceGender = DefaultVoiceGender
	}
	if r.ScriptTone == "" {
		r.ScriptTone = DefaultScriptTone
	}
	if r.VideoTheme == "" {
		r.VideoTheme = DefaultVideoTheme
	}
	return r
}

// Job is a snapshot of the render job owned by a controller
type Job struct {
	ID             string    `json:"job_id,omitempty"`
	Phase          Phase     `json:"phase"`
	Progress       int       `json:"progress"`
	ResultLocation string    `json:"result_location,omitempty"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ClampProgress bounds a backend-reported percentage to [0,100]
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}
