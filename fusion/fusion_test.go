package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/attune-ai/attune/models"
	"github.com/attune-ai/attune/types"
)

func TestFuse_AllModalities(t *testing.T) {
	history := []types.Turn{
		{Role: types.RoleUser, Text: "안녕하세요"},
		{Role: types.RoleAssistant, Text: "반갑습니다"},
	}

	fused := Fuse(Partial{
		Transcript:   "요즘 너무 불안해요",
		VoiceEmotion: &models.EmotionResult{Primary: "fear"},
		FaceEmotion:  &models.EmotionResult{Primary: "sad"},
	}, history)

	assert.Equal(t, "요즘 너무 불안해요", fused.UserText)
	assert.Equal(t, "fear", fused.VoiceEmotion)
	assert.Equal(t, "sad", fused.FaceEmotion)
	assert.Empty(t, fused.TextEmotion, "text emotion is reserved for a future classifier")
	assert.Equal(t, history, fused.History)
}

func TestFuse_MissingModalitiesStayUnset(t *testing.T) {
	fused := Fuse(Partial{Transcript: ""}, nil)

	assert.Empty(t, fused.UserText)
	assert.Empty(t, fused.VoiceEmotion)
	assert.Empty(t, fused.FaceEmotion)
	assert.Empty(t, fused.TextEmotion)
}

func TestFuse_FaceOnly(t *testing.T) {
	fused := Fuse(Partial{FaceEmotion: &models.EmotionResult{Primary: "neutral"}}, nil)

	assert.Equal(t, "neutral", fused.FaceEmotion)
	assert.Empty(t, fused.VoiceEmotion)
}
