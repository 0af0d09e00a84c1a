// Package policy holds the event access rules. Every handler that touches an
// event funnels through these predicates; nothing else decides access.
package policy

import (
	"auxparty/internal/core"
)

// CanView allows public events for everyone; private events only for the
// creator and joined participants.
func CanView(user *core.User, event *core.Event) bool {
	if event.IsPublic {
		return true
	}
	if user == nil {
		return false
	}
	return event.CreatorID == user.ID || event.HasParticipant(user.ID)
}

// CanJoin allows joining public events only. Private events have no join path;
// membership there is fixed at creation.
func CanJoin(user *core.User, event *core.Event) bool {
	return user != nil && event.IsPublic
}

// CanUpdate restricts event metadata changes to the creator.
func CanUpdate(user *core.User, event *core.Event) bool {
	return user != nil && event.CreatorID == user.ID
}

// CanRegenerate restricts playlist regeneration to the creator. Participants
// influence the playlist through their histories, not through this operation.
func CanRegenerate(user *core.User, event *core.Event) bool {
	return user != nil && event.CreatorID == user.ID
}

// CanControlPlayback restricts playback control to the creator, whose provider
// account the playback session runs on.
func CanControlPlayback(user *core.User, event *core.Event) bool {
	return user != nil && event.CreatorID == user.ID
}

// CanCreateEvent is gated on the super user flag.
func CanCreateEvent(user *core.User) bool {
	return user != nil && user.IsSuperUser
}

// CanShare allows share links for public events only, regardless of who asks.
func CanShare(event *core.Event) bool {
	return event.IsPublic
}
