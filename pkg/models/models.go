// Package models defines the domain models for the WorkflowGuard service
package models

import (
	"time"
)

// SystemActor is the createdBy value recorded for automated snapshots.
const SystemActor = "system"

// SystemActorName is the display name used for automated audit entries.
const SystemActorName = "System"

// Document is an opaque structured snapshot of an external workflow
// definition: a tree of maps, slices, strings, numbers, bools and nils.
type Document = map[string]any

// Actor identifies who triggered a state-changing action.
// A nil UserID denotes an automated action.
type Actor struct {
	UserID   *string `json:"user_id,omitempty"`
	UserName string  `json:"user_name"`
}

// SystemActorRef returns the actor used for automated operations.
func SystemActorRef() Actor {
	return Actor{UserName: SystemActorName}
}

// UserActor returns an actor for a human user.
func UserActor(id, name string) Actor {
	if name == "" {
		name = id
	}
	return Actor{UserID: &id, UserName: name}
}

// CreatedBy returns the identifier stored on versions created by this actor.
func (a Actor) CreatedBy() string {
	if a.UserID == nil || *a.UserID == "" {
		return SystemActor
	}
	return *a.UserID
}

// ActorFromCreatedBy reverses CreatedBy, treating the literal system actor as automated.
func ActorFromCreatedBy(createdBy, name string) Actor {
	if createdBy == "" || createdBy == SystemActor {
		return SystemActorRef()
	}
	return UserActor(createdBy, name)
}

// HealthStatus represents service health
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// CloneDocument returns a deep copy of d.
func CloneDocument(d Document) Document {
	if d == nil {
		return nil
	}
	return cloneValue(d).(Document)
}

// CloneValue deep-copies a JSON-shaped value. Scalars are returned as is.
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, e := range t {
			c[k] = cloneValue(e)
		}
		return c
	case []any:
		c := make([]any, len(t))
		for i, e := range t {
			c[i] = cloneValue(e)
		}
		return c
	default:
		return v
	}
}
