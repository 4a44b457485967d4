package speech

// CaptureError is one of the fixed error codes a speech-to-text provider can
// report for a capture session.
type CaptureError string

const (
	CaptureNotAllowed   CaptureError = "not-allowed"
	CaptureNoSpeech     CaptureError = "no-speech"
	CaptureAudioFailure CaptureError = "audio-capture"
	CaptureOther        CaptureError = "other"
)

// CaptureErrorMessage maps a provider error code to the user-facing status
// text. Capture errors are never fatal; capture can always be retried.
func CaptureErrorMessage(code CaptureError) string {
	switch code {
	case CaptureNotAllowed:
		return "Microphone access was denied. Please allow microphone access and try again."
	case CaptureNoSpeech:
		return "I didn't catch that. Tap the microphone and try again."
	case CaptureAudioFailure:
		return "No microphone was found. Check your audio settings and try again."
	default:
		return "Something went wrong with voice capture. Please try again."
	}
}
