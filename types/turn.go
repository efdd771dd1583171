package types

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single entry in a session's conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// FusedContext is the merged input handed to the response generator after an
// utterance completes. Empty emotion fields mean that modality produced no
// result for this utterance; they are not errors.
type FusedContext struct {
	UserText     string `json:"user_text"`
	FaceEmotion  string `json:"face_emotion,omitempty"`
	VoiceEmotion string `json:"voice_emotion,omitempty"`
	TextEmotion  string `json:"text_emotion,omitempty"`
	History      []Turn `json:"history"`
}
