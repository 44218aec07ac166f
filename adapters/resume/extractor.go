package resume

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"go.uber.org/zap"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

// LocalExtractor reads plain text, DOCX and text-layer PDF resumes in process
type LocalExtractor struct {
	logger *zap.Logger
}

var _ repositories.ResumeTextExtractor = (*LocalExtractor)(nil)

// NewLocalExtractor creates a new local resume extractor
func NewLocalExtractor(logger *zap.Logger) *LocalExtractor {
	return &LocalExtractor{logger: logger}
}

// DetectMIMEType returns the declared type, or one derived from the file extension
func DetectMIMEType(name, declared string) string {
	declared = strings.TrimSpace(strings.SplitN(declared, ";", 2)[0])
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt":
		return entities.MIMETypePlainText
	case ".pdf":
		return entities.MIMETypePDF
	case ".docx":
		return entities.MIMETypeDocx
	case ".doc":
		return entities.MIMETypeDoc
	default:
		return declared
	}
}

// ExtractText implements repositories.ResumeTextExtractor
func (e *LocalExtractor) ExtractText(file entities.ResumeFile) (string, error) {
	mimeType := DetectMIMEType(file.Name, file.MIMEType)

	switch mimeType {
	case entities.MIMETypeDoc:
		return "", entities.ErrLegacyDoc

	case entities.MIMETypePlainText:
		return string(file.Data), nil

	case entities.MIMETypeDocx:
		text, err := extractDocxText(file.Data)
		if err != nil {
			e.logger.Warn("Failed to parse DOCX resume", zap.String("name", file.Name), zap.Error(err))
			return "", fmt.Errorf("%w: %v", entities.ErrCorruptDocx, err)
		}
		return text, nil

	case entities.MIMETypePDF:
		text, err := extractPDFText(file.Data)
		if err != nil {
			e.logger.Info("PDF has no readable structure, deferring to the model",
				zap.String("name", file.Name), zap.Error(err))
			return "", fmt.Errorf("%w: %v", entities.ErrNeedsModel, err)
		}
		if strings.TrimSpace(text) == "" {
			e.logger.Info("PDF has no text layer, deferring to the model", zap.String("name", file.Name))
			return "", entities.ErrNeedsModel
		}
		return text, nil

	default:
		return "", fmt.Errorf("%w: %s", entities.ErrNeedsModel, mimeType)
	}
}

func extractPDFText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n")
	}
	return textBuilder.String(), nil
}

func extractDocxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	return wordXMLText(doc.Editable().GetContent())
}

// wordXMLText keeps the character data of a WordprocessingML body,
// one line per paragraph
func wordXMLText(content string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(content))
	var out strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read document.xml: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteString("\t")
			case "br":
				out.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}
