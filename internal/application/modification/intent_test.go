package modification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shoply-ai-cs-api/internal/domain/entity"
)

func TestDetectIntent_Cancel(t *testing.T) {
	intent := DetectIntent("I want to cancel my order #100234")
	require.NotNil(t, intent)
	assert.Equal(t, entity.ModificationCancel, intent.Type)
	assert.True(t, intent.Actionable())
}

func TestDetectIntent_CancelBelowFloor(t *testing.T) {
	// 模糊表达：识别为取消但置信度低于 0.90 门槛
	intent := DetectIntent("I don't want it")
	require.NotNil(t, intent)
	assert.Equal(t, entity.ModificationCancel, intent.Type)
	assert.False(t, intent.Actionable())
}

func TestDetectIntent_AddressUpdate(t *testing.T) {
	intent := DetectIntent("can you change the shipping address on my order")
	require.NotNil(t, intent)
	assert.Equal(t, entity.ModificationAddressUpdate, intent.Type)
	assert.True(t, intent.Actionable())
}

func TestDetectIntent_AddressBelowFloor(t *testing.T) {
	intent := DetectIntent("we just moved last week")
	require.NotNil(t, intent)
	assert.Equal(t, entity.ModificationAddressUpdate, intent.Type)
	assert.False(t, intent.Actionable())
}

func TestDetectIntent_Refund(t *testing.T) {
	intent := DetectIntent("I'd like a refund for order 100234")
	require.NotNil(t, intent)
	assert.Equal(t, entity.ModificationRefund, intent.Type)
	assert.True(t, intent.Actionable())
}

func TestDetectIntent_Note(t *testing.T) {
	intent := DetectIntent("please add a note to the order: leave at the back door")
	require.NotNil(t, intent)
	assert.Equal(t, entity.ModificationNote, intent.Type)
	assert.True(t, intent.Actionable())
}

func TestDetectIntent_NoIntent(t *testing.T) {
	assert.Nil(t, DetectIntent("what are your shipping rates to Germany?"))
	assert.Nil(t, DetectIntent(""))
}

func TestDetectIntent_HighestConfidenceWins(t *testing.T) {
	// 同时命中取消与退款措辞时取置信度更高的规则
	intent := DetectIntent("cancel my order and refund the money back")
	require.NotNil(t, intent)
	assert.Equal(t, entity.ModificationCancel, intent.Type)
	assert.GreaterOrEqual(t, intent.Confidence, 0.92)
}

func TestIntentFloors(t *testing.T) {
	assert.Equal(t, 0.90, IntentFloor(entity.ModificationCancel))
	assert.Equal(t, 0.85, IntentFloor(entity.ModificationAddressUpdate))
	assert.Equal(t, 0.85, IntentFloor(entity.ModificationRefund))
	assert.Equal(t, 0.70, IntentFloor(entity.ModificationNote))
}

func TestClarifyQuestion(t *testing.T) {
	assert.NotEmpty(t, ClarifyQuestion(entity.ModificationCancel))
	assert.NotEmpty(t, ClarifyQuestion(entity.ModificationType("unknown")))
}
