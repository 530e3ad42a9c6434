package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every progression event is keyed by the user that
// owns the affected rows, so AggregateID is always a user id.
const (
	// User lifecycle events
	EventUserRegistered EventType = "user.registered"
	EventUserDeleted    EventType = "user.deleted"

	// Progress events
	EventXPGained EventType = "progress.xp_gained"
	EventLevelUp  EventType = "progress.level_up"

	// Module events
	EventModuleUnlocked  EventType = "module.unlocked"
	EventModuleCompleted EventType = "module.completed"

	// Mission events
	EventMissionCompleted EventType = "mission.completed"

	// Activity events
	EventStreakUpdated      EventType = "streak.updated"
	EventDeclarationCreated EventType = "declaration.created"
	EventAchievementEarned  EventType = "achievement.earned"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with the flow's clock.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// User Events
// ═══════════════════════════════════════════════════════════════════════════

// UserRegisteredEvent is emitted when a profile is created for a new user.
type UserRegisteredEvent struct {
	BaseEvent
	FirstModuleID string `json:"first_module_id"`
}

// Payload implements Event interface.
func (e UserRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"first_module_id": e.FirstModuleID,
	}
}

// NewUserRegisteredEvent creates a new UserRegisteredEvent.
func NewUserRegisteredEvent(userID, firstModuleID string, at time.Time) UserRegisteredEvent {
	return UserRegisteredEvent{
		BaseEvent:     NewBaseEvent(EventUserRegistered, userID, at),
		FirstModuleID: firstModuleID,
	}
}

// UserDeletedEvent is emitted after a user's progression data is removed.
type UserDeletedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e UserDeletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewUserDeletedEvent creates a new UserDeletedEvent.
func NewUserDeletedEvent(userID string, at time.Time) UserDeletedEvent {
	return UserDeletedEvent{BaseEvent: NewBaseEvent(EventUserDeleted, userID, at)}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a user gains XP.
type XPGainedEvent struct {
	BaseEvent
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Source   string `json:"source"` // e.g., "declaration", "mission", "achievement"
	SourceID string `json:"source_id,omitempty"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"source":    e.Source,
		"source_id": e.SourceID,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(userID string, amount, newTotal int, source, sourceID string, at time.Time) XPGainedEvent {
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(EventXPGained, userID, at),
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
		SourceID:  sourceID,
	}
}

// LevelUpEvent is emitted when an XP award moves the user to a higher level.
type LevelUpEvent struct {
	BaseEvent
	OldLevel int `json:"old_level"`
	NewLevel int `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Module Events
// ═══════════════════════════════════════════════════════════════════════════

// ModuleUnlockedEvent is emitted on every locked→unlocked transition.
type ModuleUnlockedEvent struct {
	BaseEvent
	ModuleID     string `json:"module_id"`
	AutoUnlocked bool   `json:"auto_unlocked"`
	Trigger      string `json:"trigger"` // "request", "sync", "pillars", "registration"
}

// Payload implements Event interface.
func (e ModuleUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"module_id":     e.ModuleID,
		"auto_unlocked": e.AutoUnlocked,
		"trigger":       e.Trigger,
	}
}

// NewModuleUnlockedEvent creates a new ModuleUnlockedEvent.
func NewModuleUnlockedEvent(userID, moduleID string, auto bool, trigger string, at time.Time) ModuleUnlockedEvent {
	return ModuleUnlockedEvent{
		BaseEvent:    NewBaseEvent(EventModuleUnlocked, userID, at),
		ModuleID:     moduleID,
		AutoUnlocked: auto,
		Trigger:      trigger,
	}
}

// ModuleCompletedEvent is emitted on unlocked→completed.
type ModuleCompletedEvent struct {
	BaseEvent
	ModuleID string `json:"module_id"`
}

// Payload implements Event interface.
func (e ModuleCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"module_id": e.ModuleID,
	}
}

// NewModuleCompletedEvent creates a new ModuleCompletedEvent.
func NewModuleCompletedEvent(userID, moduleID string, at time.Time) ModuleCompletedEvent {
	return ModuleCompletedEvent{
		BaseEvent: NewBaseEvent(EventModuleCompleted, userID, at),
		ModuleID:  moduleID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Mission Events
// ═══════════════════════════════════════════════════════════════════════════

// MissionCompletedEvent is emitted when a mission progress reaches completed.
type MissionCompletedEvent struct {
	BaseEvent
	MissionID string `json:"mission_id"`
	ModuleID  string `json:"module_id,omitempty"`
	XPReward  int    `json:"xp_reward"`
	Automatic bool   `json:"automatic"`
}

// Payload implements Event interface.
func (e MissionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"mission_id": e.MissionID,
		"module_id":  e.ModuleID,
		"xp_reward":  e.XPReward,
		"automatic":  e.Automatic,
	}
}

// NewMissionCompletedEvent creates a new MissionCompletedEvent.
func NewMissionCompletedEvent(userID, missionID, moduleID string, xp int, automatic bool, at time.Time) MissionCompletedEvent {
	return MissionCompletedEvent{
		BaseEvent: NewBaseEvent(EventMissionCompleted, userID, at),
		MissionID: missionID,
		ModuleID:  moduleID,
		XPReward:  xp,
		Automatic: automatic,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Activity Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted after every streak update.
type StreakUpdatedEvent struct {
	BaseEvent
	ModuleID string `json:"module_id,omitempty"` // empty for the global bucket
	Current  int    `json:"current"`
	Longest  int    `json:"longest"`
	Reset    bool   `json:"reset"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"module_id": e.ModuleID,
		"current":   e.Current,
		"longest":   e.Longest,
		"reset":     e.Reset,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID, moduleID string, current, longest int, reset bool, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStreakUpdated, userID, at),
		ModuleID:  moduleID,
		Current:   current,
		Longest:   longest,
		Reset:     reset,
	}
}

// DeclarationCreatedEvent is emitted when a declaration is stored.
type DeclarationCreatedEvent struct {
	BaseEvent
	DeclarationID string `json:"declaration_id"`
	ModuleID      string `json:"module_id"`
	Pillar        string `json:"pillar"`
	FirstInPillar bool   `json:"first_in_pillar"`
}

// Payload implements Event interface.
func (e DeclarationCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"declaration_id":  e.DeclarationID,
		"module_id":       e.ModuleID,
		"pillar":          e.Pillar,
		"first_in_pillar": e.FirstInPillar,
	}
}

// NewDeclarationCreatedEvent creates a new DeclarationCreatedEvent.
func NewDeclarationCreatedEvent(userID, declarationID, moduleID, pillar string, first bool, at time.Time) DeclarationCreatedEvent {
	return DeclarationCreatedEvent{
		BaseEvent:     NewBaseEvent(EventDeclarationCreated, userID, at),
		DeclarationID: declarationID,
		ModuleID:      moduleID,
		Pillar:        pillar,
		FirstInPillar: first,
	}
}

// AchievementEarnedEvent is emitted the first time a user earns an achievement.
type AchievementEarnedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	XPReward      int    `json:"xp_reward"`
}

// Payload implements Event interface.
func (e AchievementEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"xp_reward":      e.XPReward,
	}
}

// NewAchievementEarnedEvent creates a new AchievementEarnedEvent.
func NewAchievementEarnedEvent(userID, achievementID string, xp int, at time.Time) AchievementEarnedEvent {
	return AchievementEarnedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementEarned, userID, at),
		AchievementID: achievementID,
		XPReward:      xp,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event into an envelope with the given id.
func NewEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}

	env := EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Payload:     payload,
	}
	if b, ok := event.(interface{ Base() BaseEvent }); ok {
		env.CorrelationID = b.Base().CorrelationID
	}
	return env, nil
}

// Base exposes the embedded BaseEvent.
func (e BaseEvent) Base() BaseEvent {
	return e
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
