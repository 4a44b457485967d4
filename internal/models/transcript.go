package models

// Speaker identifies who authored a transcript entry.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// TranscriptEntry is one line of the displayed conversation. The transcript is
// append-only for the life of the session and is cleared only by a full reset.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}
