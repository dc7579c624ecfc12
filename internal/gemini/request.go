package gemini

import (
	"errors"

	"GemChat/internal/attachment"
)

// BuildRequest assembles text and attachments into the wire payload for
// one outbound turn: a text part first when text is non-empty, then one
// encoded part per attachment in submission order. Attachments of
// untransmitted types are omitted; an attachment that fails to encode
// aborts the build.
func BuildRequest(text string, atts []attachment.Attachment) (*GenerateRequest, error) {
	parts := []Part{}

	if text != "" {
		parts = append(parts, Part{Text: text})
	}

	for _, att := range atts {
		frag, err := attachment.Encode(att)
		if errors.Is(err, attachment.ErrSkipped) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if frag.Data != "" {
			parts = append(parts, Part{InlineData: &InlineData{
				MIMEType: frag.MIMEType,
				Data:     frag.Data,
			}})
		} else {
			parts = append(parts, Part{Text: frag.Text})
		}
	}

	if len(parts) == 0 {
		return nil, ErrEmptyRequest
	}

	return &GenerateRequest{
		Contents: []Content{{Parts: parts}},
	}, nil
}
