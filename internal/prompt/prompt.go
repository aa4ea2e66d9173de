package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// --- Instruction templates ---
const SummarizeInstruction = "Summarize the following text:"
const AnswerInstruction = "Answer the following question based on the document:"

// TruncationMarker is appended to document text cut by PolicyTruncate.
const TruncationMarker = "[Document truncated: the remaining text exceeded the input limit.]"

// ErrInputTooLarge is returned by Check under PolicyReject.
var ErrInputTooLarge = errors.New("document text exceeds the maximum input length")

// Mode selects the prompt template.
type Mode int

const (
	ModeSummarize Mode = iota
	ModeAnswer
)

func (m Mode) String() string {
	switch m {
	case ModeSummarize:
		return "summarize"
	case ModeAnswer:
		return "answer"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Operation is what the caller asked for. Question is only read for ModeAnswer.
type Operation struct {
	Mode     Mode
	Question string
}

// Summarize returns the summarize operation.
func Summarize() Operation { return Operation{Mode: ModeSummarize} }

// Answer returns the answer-question operation.
func Answer(question string) Operation { return Operation{Mode: ModeAnswer, Question: question} }

// Policy decides what happens to document text longer than the limit.
type Policy string

const (
	PolicyTruncate Policy = "truncate"
	PolicyReject   Policy = "reject"
)

// Builder assembles prompts. A zero MaxInputChars disables the limit.
type Builder struct {
	MaxInputChars int
	Policy        Policy
}

// Check reports ErrInputTooLarge when text is over the limit and the policy
// is PolicyReject.
func (b Builder) Check(text string) error {
	if b.Policy == PolicyReject && b.over(text) {
		return fmt.Errorf("%w: %d characters, limit %d", ErrInputTooLarge, utf8.RuneCountInString(text), b.MaxInputChars)
	}
	return nil
}

// Build returns the prompt for op over text. It never fails; oversized text
// is cut at the limit under PolicyTruncate and passed through otherwise.
func (b Builder) Build(text string, op Operation) string {
	text, _ = b.Bound(text)

	var sb strings.Builder
	switch op.Mode {
	case ModeAnswer:
		sb.WriteString(AnswerInstruction)
		sb.WriteString("\n\nQuestion: ")
		sb.WriteString(op.Question)
		sb.WriteString("\n\nDocument:\n")
		sb.WriteString(text)
	default:
		sb.WriteString(SummarizeInstruction)
		sb.WriteString("\n\n")
		sb.WriteString(text)
	}
	return sb.String()
}

// Bound applies the truncation policy and reports whether text was cut.
func (b Builder) Bound(text string) (string, bool) {
	if b.Policy != PolicyTruncate || !b.over(text) {
		return text, false
	}
	cut := 0
	for i := range text {
		if cut == b.MaxInputChars {
			return text[:i] + "\n\n" + TruncationMarker, true
		}
		cut++
	}
	return text, false
}

func (b Builder) over(text string) bool {
	return b.MaxInputChars > 0 && utf8.RuneCountInString(text) > b.MaxInputChars
}
