package interview

import (
	"strings"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

// Accumulator merges streamed transcription deltas into completed turns.
// It is not safe for concurrent use; the Controller serialises access.
type Accumulator struct {
	input  strings.Builder
	output strings.Builder
}

// AppendInput appends a delta of the user's speech verbatim
func (a *Accumulator) AppendInput(delta string) {
	a.input.WriteString(delta)
}

// AppendOutput appends a delta of the model's speech verbatim
func (a *Accumulator) AppendOutput(delta string) {
	a.output.WriteString(delta)
}

// Complete commits the pending turns, user first, and resets both roles.
// Whitespace-only turns are dropped.
func (a *Accumulator) Complete() []entities.TranscriptTurn {
	var turns []entities.TranscriptTurn
	if user := a.input.String(); strings.TrimSpace(user) != "" {
		turns = append(turns, entities.TranscriptTurn{Role: entities.RoleUser, Content: user})
	}
	if model := a.output.String(); strings.TrimSpace(model) != "" {
		turns = append(turns, entities.TranscriptTurn{Role: entities.RoleModel, Content: model})
	}
	a.input.Reset()
	a.output.Reset()
	return turns
}

// Pending returns the uncommitted text of both roles
func (a *Accumulator) Pending() (input, output string) {
	return a.input.String(), a.output.String()
}
