package live

import (
	"encoding/json"
	"strings"

	"github.com/satriahrh/careerpilot/server/domain/entities"
	"github.com/satriahrh/careerpilot/server/domain/repositories"
)

// Outgoing

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks"`
}

func newSetupMessage(config repositories.LiveSessionConfig) setupMessage {
	model := config.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	modalities := config.ResponseModalities
	if len(modalities) == 0 {
		modalities = []string{"AUDIO"}
	}

	msg := setupMessage{
		Setup: setupConfig{
			Model:            model,
			GenerationConfig: generationConfig{ResponseModalities: modalities},
		},
	}
	if config.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: config.SystemInstruction}}}
	}
	if config.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}
	if config.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	return msg
}

// Incoming

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *ServerError     `json:"error,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

func (sc *serverContent) toLiveMessage() entities.LiveMessage {
	msg := entities.LiveMessage{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.InputTranscription != nil {
		msg.InputTranscription = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		msg.OutputTranscription = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if p.InlineData.MIMEType != "" && !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			msg.AudioChunks = append(msg.AudioChunks, p.InlineData.Data)
		}
	}
	return msg
}
