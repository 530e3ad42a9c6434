package shared_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/internal/domain/shared"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{shared.NotFound("module", "Get", "module", "x"), shared.KindNotFound},
		{shared.Validation("declaration", "New", "text is required"), shared.KindValidation},
		{shared.NewDomainError("module", "Unlock", shared.ErrPermissionDenied, "no"), shared.KindPermissionDenied},
		{fmt.Errorf("wrapped: %w", shared.ErrInvalidTransition), shared.KindInvalidTransition},
		{errors.New("connection reset"), shared.KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shared.KindOf(tt.err))
	}
}

func TestDomainError(t *testing.T) {
	cause := errors.New("boom")
	err := shared.WrapError("catalog", "Parse", shared.ErrValidation, "malformed catalogue", cause)

	assert.Equal(t, "catalog.Parse: malformed catalogue: boom", err.Error())
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, shared.ErrNotFound))

	plain := shared.NotFound("profile", "Get", "profile", "u1")
	assert.Equal(t, `profile.Get: profile "u1" not found`, plain.Error())
	assert.Equal(t, shared.ErrNotFound, errors.Unwrap(plain))
}

func TestNewUserID(t *testing.T) {
	id, err := shared.NewUserID("  u1 ")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.String())

	_, err = shared.NewUserID(" ")
	assert.True(t, shared.IsValidation(err))
}

func TestXP(t *testing.T) {
	assert.Equal(t, 1, shared.XP(0).Level().Int())
	assert.Equal(t, 2, shared.XP(100).Level().Int())
	assert.Equal(t, 30, shared.XP(130).ProgressToNextLevel())
	assert.Equal(t, shared.XP(0), shared.XP(10).Add(-50), "never below zero")
	assert.Equal(t, 0, shared.Level(1).RequiredXP())
	assert.Equal(t, 200, shared.Level(3).RequiredXP())

	_, err := shared.NewXPAward(-1)
	assert.True(t, shared.IsValidation(err))
}

func TestNewEnvelope(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	e := shared.NewXPGainedEvent("u1", 20, 60, "declaration", "d1", at)
	e.BaseEvent = e.BaseEvent.WithCorrelationID("corr-1")

	env, err := shared.NewEnvelope("evt-1", e)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", env.ID)
	assert.Equal(t, shared.EventXPGained, env.Type)
	assert.Equal(t, "u1", env.AggregateID)
	assert.Equal(t, at, env.Timestamp)
	assert.Equal(t, "corr-1", env.CorrelationID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.EqualValues(t, 20, payload["amount"])
	assert.EqualValues(t, 60, payload["new_total"])
}

func TestEventsAreKeyedByUser(t *testing.T) {
	at := time.Now()
	events := []shared.Event{
		shared.NewUserRegisteredEvent("u1", "vision", at),
		shared.NewUserDeletedEvent("u1", at),
		shared.NewLevelUpEvent("u1", 1, 2, at),
		shared.NewModuleUnlockedEvent("u1", "vision", true, "registration", at),
		shared.NewModuleCompletedEvent("u1", "vision", at),
		shared.NewMissionCompletedEvent("u1", "m1", "vision", 50, false, at),
		shared.NewStreakUpdatedEvent("u1", "", 2, 2, false, at),
		shared.NewDeclarationCreatedEvent("u1", "d1", "vision", "Vision", true, at),
		shared.NewAchievementEarnedEvent("u1", "a1", 100, at),
	}
	for _, e := range events {
		assert.Equal(t, "u1", e.AggregateID(), string(e.EventType()))
		assert.NotEmpty(t, e.Payload(), string(e.EventType()))
	}
}
