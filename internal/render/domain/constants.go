package domain

// Phase is the lifecycle state of a render job
type Phase string

// Job phases
const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseQueued     Phase = "queued"
	PhaseProcessing Phase = "processing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether no further transition can happen for the job
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Active reports whether a job is in flight
func (p Phase) Active() bool {
	return p == PhaseSubmitting || p == PhaseQueued || p == PhaseProcessing
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	switch p {
	case PhaseIdle, PhaseSubmitting, PhaseQueued, PhaseProcessing, PhaseDone, PhaseFailed:
		return true
	}
	return false
}

// CanSubmit reports whether a new submission may start from this phase
func (p Phase) CanSubmit() bool {
	return p == PhaseIdle || p.Terminal()
}

// Status values reported by the render backend
const (
	BackendStatusQueued     = "queued"
	BackendStatusProcessing = "processing"
	BackendStatusDone       = "done"
	BackendStatusFailed     = "failed"
)

// Voice genders understood by the narration engine
const (
	VoiceFemale = "female"
	VoiceMale   = "male"
)

// Request defaults used by the storefront UI
const (
	DefaultDurationSeconds = 15
	DefaultVoiceGender     = VoiceFemale
	DefaultScriptTone      = "Professional"
	DefaultVideoTheme      = "Modern"
)

// Duration domain of a rendered video
const (
	MinDurationSeconds  = 10
	MaxDurationSeconds  = 60
	DurationStepSeconds = 5

	// SecondsPerImage drives the image cap: one image per three seconds of video
	SecondsPerImage = 3

	// InitialSelectionSize is how many catalog images are preselected
	InitialSelectionSize = 5
)

// Error details reported to observers
const (
	DetailNoImages           = "no images selected"
	DetailBackendUnreachable = "backend unreachable"
	DetailNoResult           = "completed without result"
	DetailStartFailed        = "failed to start"
	DetailGenerationFailed   = "generation failed"
	DetailMalformedResponse  = "malformed response"
	DetailSessionExpired     = "session expired"
)
