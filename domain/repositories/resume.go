package repositories

import "github.com/satriahrh/careerpilot/server/domain/entities"

// ResumeTextExtractor reads resume text locally, without a model
type ResumeTextExtractor interface {
	// ExtractText returns the text of file. It returns an error wrapping
	// entities.ErrNeedsModel when the document can only be read by the model.
	ExtractText(file entities.ResumeFile) (string, error)
}
