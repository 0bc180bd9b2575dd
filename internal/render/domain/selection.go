package domain

import (
	"fmt"
	"slices"
)

// ValidateDuration checks the duration against the slider domain of the UI
func ValidateDuration(seconds int) error {
	if seconds < MinDurationSeconds || seconds > MaxDurationSeconds {
		return NewValidationError("duration",
			fmt.Sprintf("duration must be between %d and %d seconds", MinDurationSeconds, MaxDurationSeconds),
			ErrInvalidDuration)
	}
	if seconds%DurationStepSeconds != 0 {
		return NewValidationError("duration",
			fmt.Sprintf("duration must be a multiple of %d seconds", DurationStepSeconds),
			ErrInvalidDuration)
	}
	return nil
}

// MaxImagesAllowed returns how many images a video of the given length can show
func MaxImagesAllowed(durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	return durationSeconds / SecondsPerImage
}

// ValidateSelection is the admission gate run before a request reaches the controller
func ValidateSelection(images []string, durationSeconds int) error {
	if len(images) == 0 {
		return NewValidationError("images", DetailNoImages, ErrNoImages)
	}
	if limit := MaxImagesAllowed(durationSeconds); len(images) > limit {
		return NewValidationError("images",
			fmt.Sprintf("max %d images for %ds", limit, durationSeconds),
			ErrImageLimitReached)
	}
	return nil
}

// ImageSelection tracks the images picked for a video and enforces the cap at selection time
type ImageSelection struct {
	durationSeconds int
	images          []string
}

// NewImageSelection creates an empty selection for the given duration
func NewImageSelection(durationSeconds int) *ImageSelection {
	return &ImageSelection{durationSeconds: durationSeconds}
}

// SelectionFromCatalog preselects the leading catalog images, bounded by the cap
func SelectionFromCatalog(catalog []string, durationSeconds int) *ImageSelection {
	n := min(len(catalog), InitialSelectionSize, MaxImagesAllowed(durationSeconds))
	return &ImageSelection{
		durationSeconds: durationSeconds,
		images:          slices.Clone(catalog[:n]),
	}
}

// Limit returns the current cap
func (s *ImageSelection) Limit() int {
	return MaxImagesAllowed(s.durationSeconds)
}

// Toggle removes an already selected image or adds a new one.
// Adding past the cap fails and leaves the selection untouched.
func (s *ImageSelection) Toggle(image string) error {
	if i := slices.Index(s.images, image); i >= 0 {
		s.images = slices.Delete(s.images, i, i+1)
		return nil
	}
	if len(s.images) >= s.Limit() {
		return NewValidationError("images",
			fmt.Sprintf("limit reached: max %d images for %ds", s.Limit(), s.durationSeconds),
			ErrImageLimitReached)
	}
	s.images = append(s.images, image)
	return nil
}

// Contains reports whether the image is selected
func (s *ImageSelection) Contains(image string) bool {
	return slices.Contains(s.images, image)
}

// Images returns a copy of the selected images in selection order
func (s *ImageSelection) Images() []string {
	return slices.Clone(s.images)
}

// Len returns the number of selected images
func (s *ImageSelection) Len() int {
	return len(s.images)
}

// Validate runs the full admission check on the current selection
func (s *ImageSelection) Validate() error {
	if err := ValidateDuration(s.durationSeconds); err != nil {
		return err
	}
	return ValidateSelection(s.images, s.durationSeconds)
}
