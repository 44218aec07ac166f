package entities

import (
	"errors"
	"strings"
	"time"
)

// AtsData is the resume analysis returned by the assistant
type AtsData struct {
	ATSScore        int    `json:"ATS_Score"`
	Strengths       string `json:"Strengths"`
	Gaps            string `json:"Gaps"`
	Recommendations string `json:"Recommendations"`
}

// Validate validates the analysis
func (a *AtsData) Validate() error {
	if a.ATSScore < 0 || a.ATSScore > 100 {
		return errors.New("ATS_Score must be between 0 and 100")
	}
	return nil
}

// JobListing is a single job found by the grounded search
type JobListing struct {
	Title        string `json:"Title"`
	Company      string `json:"Company"`
	Location     string `json:"Location"`
	ApplyURL     string `json:"Apply_URL"`
	ContactEmail string `json:"Contact_Email,omitempty"`
}

// Key identifies a listing for one-click apply
func (j JobListing) Key() string {
	return strings.TrimSpace(j.Title) + "|" + strings.TrimSpace(j.Company)
}

// GroundingSource is a citation reported by the search grounding
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// JobSearchData is the grounded job search result
type JobSearchData struct {
	JobListings []JobListing      `json:"Job_Listings"`
	Message     string            `json:"Message"`
	Sources     []GroundingSource `json:"sources,omitempty"`
}

// EmailSendData is the webhook payload for sending an application
type EmailSendData struct {
	Action         string     `json:"action"`
	Resume         string     `json:"resume"`
	CoverLetter    string     `json:"cover_letter"`
	RecipientEmail string     `json:"recipient_email"`
	JobDetails     JobListing `json:"job_details"`
}

// Validate validates the payload
func (e *EmailSendData) Validate() error {
	if e.RecipientEmail == "" || !strings.Contains(e.RecipientEmail, "@") {
		return errors.New("a valid recipient_email is required")
	}
	if strings.TrimSpace(e.Resume) == "" {
		return errors.New("resume is required")
	}
	if strings.TrimSpace(e.CoverLetter) == "" {
		return errors.New("cover_letter is required")
	}
	return nil
}

// ApplicationStatus tracks one-click apply per listing
type ApplicationStatus string

const (
	ApplicationStatusSending ApplicationStatus = "sending"
	ApplicationStatusSent    ApplicationStatus = "sent"
	ApplicationStatusError   ApplicationStatus = "error"
)

// Application is the state of a one-click apply attempt
type Application struct {
	Key       string            `json:"key"`
	Status    ApplicationStatus `json:"status"`
	Message   string            `json:"message,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ChatMessage is one message of the career chat
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResumeFile is an uploaded resume document
type ResumeFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

var (
	// ErrLegacyDoc rejects Word 97-2003 documents
	ErrLegacyDoc = errors.New("Legacy .doc files are not supported. Please save the file as a .docx, .pdf, or .txt to proceed.")

	// ErrCorruptDocx is returned when a .docx archive cannot be read
	ErrCorruptDocx = errors.New("Failed to read the content of the .docx file. It might be corrupted.")

	// ErrNeedsModel means the document has no locally extractable text
	ErrNeedsModel = errors.New("document needs model extraction")
)

// Resume MIME types
const (
	MIMETypePlainText = "text/plain"
	MIMETypePDF       = "application/pdf"
	MIMETypeDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMETypeDoc       = "application/msword"
)
