package backend

// Endpoint paths exposed by the render engine
const (
	SubmitPath    = "/api/start-video-generation"
	StatusPathTpl = "/api/check-status/%s"
)

// Multipart form fields of a submission
const (
	FieldImageURLs     = "image_urls"
	FieldProductTitle  = "product_title"
	FieldProductDesc   = "product_desc"
	FieldDuration      = "duration"
	FieldVoiceGender   = "voice_gender"
	FieldScriptTone    = "script_tone"
	FieldVideoTheme    = "video_theme"
	FieldShopName      = "shop_name"
	FieldCustomScript  = "custom_script"
	FieldMusicFile     = "music_file"
	FieldUserVoiceFile = "user_voice_file"
)

// SubmitResult is the backend's answer to an accepted submission
type SubmitResult struct {
	Status string
	JobID  string
}

// StatusReport is one poll answer
type StatusReport struct {
	Status   string
	Progress *int
	URL      string
	Error    string
}

type submitResponse struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (r submitResponse) reason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	default:
		return r.Detail
	}
}

type statusResponse struct {
	Status   string `json:"status"`
	Progress *int   `json:"progress"`
	URL      string `json:"url"`
	Error    string `json:"error"`
}
