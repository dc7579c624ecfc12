package attachment

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEncoding indicates the attachment content could not be read or encoded.
	ErrEncoding = errors.New("attachment encoding failed")

	// ErrSkipped indicates the attachment type is not transmitted to the API.
	// Callers omit the fragment from the outbound request but may still keep
	// the attachment for local display.
	ErrSkipped = errors.New("attachment type not transmitted")
)

// Attachment represents a user-supplied file destined for the outbound request
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Fragment is one transport-ready unit of outbound request content.
// Exactly one of Text or Data is populated: Data carries a base64 inline
// payload with its MIMEType, Text carries plain text.
type Fragment struct {
	Text     string
	MIMEType string
	Data     string
}

// FromFile reads a file from disk and classifies its media type.
func FromFile(path string) (Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	name := filepath.Base(path)
	return Attachment{
		Name:     name,
		MIMEType: DetectMIME(name, data),
		Data:     data,
	}, nil
}

// DetectMIME resolves a media type from the file extension, falling back
// to content sniffing when the extension is unknown.
func DetectMIME(name string, data []byte) string {
	if mt := mime.TypeByExtension(filepath.Ext(name)); mt != "" {
		// TypeByExtension may include parameters (e.g. "text/plain; charset=utf-8")
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		return mt
	}
	return http.DetectContentType(data)
}

// Transmittable reports whether an attachment of the given media type is
// included in the outbound request. Classification is binary: images go
// out as inline data, text/plain goes out as labeled text, nothing else
// is transmitted.
func Transmittable(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/") || mimeType == "text/plain"
}

// Encode converts an attachment into a transport-ready fragment.
// Images produce a base64 inline-data fragment, text/plain produces a
// labeled text fragment, and any other type returns ErrSkipped.
func Encode(att Attachment) (Fragment, error) {
	switch {
	case strings.HasPrefix(att.MIMEType, "image/"):
		if len(att.Data) == 0 {
			return Fragment{}, fmt.Errorf("%w: %s: empty image content", ErrEncoding, att.Name)
		}
		return Fragment{
			MIMEType: att.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(att.Data),
		}, nil

	case att.MIMEType == "text/plain":
		if !utf8.Valid(att.Data) {
			return Fragment{}, fmt.Errorf("%w: %s: content is not valid text", ErrEncoding, att.Name)
		}
		return Fragment{
			Text: fmt.Sprintf("File: %s\nContent: %s", att.Name, string(att.Data)),
		}, nil

	default:
		return Fragment{}, fmt.Errorf("%w: %s (%s)", ErrSkipped, att.Name, att.MIMEType)
	}
}
