package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayloadFromRequestRejectsUnknownKind(t *testing.T) {
	_, err := PayloadFromRequest(EventType("totally_new"), map[string]any{"x": 1})
	require.Error(t, err)
}

func TestPayloadFromRequestDecodesTypedKinds(t *testing.T) {
	payload, err := PayloadFromRequest(EventPageView, map[string]any{"page": "/plans"})
	require.NoError(t, err)

	pv, ok := payload.(*PageViewPayload)
	require.True(t, ok)
	require.Equal(t, "/plans", pv.Page)
	require.Equal(t, EventPageView, payload.Kind())
}

func TestDecodePayloadRoundTripsPlanChange(t *testing.T) {
	ev := &Event{
		Type:    EventPlanDowngrade,
		Payload: NewPlanChangePayload(EventPlanDowngrade, "pro", "free"),
	}
	body, err := ev.EncodePayload()
	require.NoError(t, err)

	decoded, err := DecodePayload(EventPlanDowngrade, body)
	require.NoError(t, err)
	pc, ok := decoded.(PlanChangePayload)
	require.True(t, ok)
	require.Equal(t, "pro", pc.OldTier)
	require.Equal(t, "free", pc.NewTier)
	require.Equal(t, EventPlanDowngrade, pc.Kind())
}

func TestEncodePayloadNilIsEmptyObject(t *testing.T) {
	ev := &Event{Type: EventPageView}
	body, err := ev.EncodePayload()
	require.NoError(t, err)
	require.Equal(t, "{}", body)
}
