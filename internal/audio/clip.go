package audio

import (
	"fmt"
	"time"
)

// MIME types produced by the capture and synthesis collaborators
const (
	MIMETypeMPEG = "audio/mpeg"
	MIMETypeWAV  = "audio/wav"
	MIMETypeWebM = "audio/webm"
	MIMETypeOGG  = "audio/ogg"
)

// Clip is a finished audio recording or synthesized utterance
type Clip struct {
	Data     []byte
	MIMEType string
	Duration time.Duration // best effort; zero when unknown
}

// Len returns the payload size in bytes
func (c Clip) Len() int {
	return len(c.Data)
}

// Empty reports whether the clip carries no audio
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

// FileName returns a conventional upload name for the clip's MIME type
func (c Clip) FileName(base string) string {
	return fmt.Sprintf("%s.%s", base, ExtensionFor(c.MIMEType))
}

// ExtensionFor maps a MIME type to a file extension understood by
// transcription services
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case MIMETypeMPEG, "audio/mp3":
		return "mp3"
	case MIMETypeWAV, "audio/x-wav", "audio/wave":
		return "wav"
	case MIMETypeWebM:
		return "webm"
	case MIMETypeOGG:
		return "ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/flac":
		return "flac"
	}
	return "mp3"
}
