package llm

import (
	"strings"

	"google.golang.org/genai"

	"github.com/chatiq/chatiq/internal/domain"
)

// buildContents maps the conversation window to the completion wire
// shape. Only the final turn carries the persona instructions, so the
// persona text is not repeated across prior turns; the image (when
// present) rides on that final turn as an inline part.
func buildContents(persona string, req domain.CompletionRequest) []*genai.Content {
	var contents []*genai.Content
	if len(req.Turns) > 0 {
		for _, t := range req.Turns[:len(req.Turns)-1] {
			contents = append(contents, genai.NewContentFromText(t.Text, roleFor(t.Sender)))
		}
	}

	final := genai.NewContentFromText(finalTurnText(persona, req), genai.RoleUser)
	if req.Image != nil {
		final.Parts = append(final.Parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MimeType))
	}
	return append(contents, final)
}

// finalTurnText builds the instructed current turn: persona first, then
// any long-term corrections (best effort), then the raw user query.
func finalTurnText(persona string, req domain.CompletionRequest) string {
	var b strings.Builder
	b.WriteString(persona)
	if len(req.Notes) > 0 {
		b.WriteString("\n\nKNOWN CORRECTIONS FROM EARLIER FEEDBACK:\n")
		for _, n := range req.Notes {
			b.WriteString("- ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n\nUSER QUERY:\n")
	b.WriteString(req.Query)
	return b.String()
}

func roleFor(s domain.Sender) genai.Role {
	if s == domain.SenderBot {
		return genai.RoleModel
	}
	return genai.RoleUser
}

const verificationPromptTemplate = `Please verify the following statement for accuracy and completeness based on your knowledge. If it is inaccurate, provide a corrected and improved response. If it is accurate, just repeat the original response.
USER QUERY: %s
RESPONSE: %s`
