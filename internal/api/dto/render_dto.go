package dto

import (
	"mime/multipart"

	"github.com/cuongbtq/render-studio/internal/render/domain"
)

// RenderForm mirrors the multipart form of the render engine
type RenderForm struct {
	ImageURLs     string                `form:"image_urls"` // JSON array
	ProductTitle  string                `form:"product_title"`
	ProductDesc   string                `form:"product_desc"`
	Duration      int                   `form:"duration"`
	VoiceGender   string                `form:"voice_gender" binding:"omitempty,oneof=female male"`
	ScriptTone    string                `form:"script_tone"`
	VideoTheme    string                `form:"video_theme"`
	ShopName      string                `form:"shop_name"`
	CustomScript  string                `form:"custom_script"`
	MusicFile     *multipart.FileHeader `form:"music_file"`
	UserVoiceFile *multipart.FileHeader `form:"user_voice_file"`
}

type ImageCapRequest struct {
	Duration int `form:"duration" binding:"required"`
}

type ImageCapResponse struct {
	Duration  int `json:"duration"`
	MaxImages int `json:"max_images"`
}

type RenderResponse struct {
	SessionID string     `json:"session_id"`
	ShopID    string     `json:"shop_id,omitempty"`
	Job       domain.Job `json:"job"`
}

type HistoryRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type HistoryResponse struct {
	SessionID   string          `json:"session_id"`
	Transitions []TransitionDTO `json:"transitions"`
	NextCursor  string          `json:"next_cursor,omitempty"`
}

type TransitionDTO struct {
	EventID        string `json:"event_id"`
	Seq            int    `json:"seq"`
	JobID          string `json:"job_id,omitempty"`
	Phase          string `json:"phase"`
	Progress       int    `json:"progress"`
	ResultLocation string `json:"result_location,omitempty"`
	ErrorDetail    string `json:"error_detail,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
