// Package fusion merges the per-modality analysis results of one utterance
// into the single context object handed to the response generator.
package fusion

import (
	"github.com/attune-ai/attune/models"
	"github.com/attune-ai/attune/types"
)

// Partial holds whatever subset of modality results is available when an
// utterance pipeline completes. Nil emotion results mean that modality
// produced nothing (failed, timed out, or had no input).
type Partial struct {
	Transcript   string
	VoiceEmotion *models.EmotionResult
	FaceEmotion  *models.EmotionResult
}

// Fuse builds the FusedContext from the available results and the
// conversation history. No voting or conflict resolution happens here: all
// available signals pass through and the response generator owns any
// weighting. The text_emotion field is reserved for a future text-based
// classifier and stays unset.
func Fuse(partial Partial, history []types.Turn) types.FusedContext {
	fused := types.FusedContext{
		UserText: partial.Transcript,
		History:  history,
	}
	if partial.VoiceEmotion != nil {
		fused.VoiceEmotion = partial.VoiceEmotion.Primary
	}
	if partial.FaceEmotion != nil {
		fused.FaceEmotion = partial.FaceEmotion.Primary
	}
	return fused
}
