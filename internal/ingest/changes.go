package ingest

import (
	"fiatjaf.com/nostr"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// DataChange is the typed notification set emitted on every successful
// ingest (spec 4.2). Consumers type-switch on the concrete variant.
type DataChange interface {
	isDataChange()
}

type EventIngested struct{ Kind int }
type ProfileUpdated struct{ Pubkey string }
type ProjectsChanged struct{}
type ThreadUpdated struct{ ThreadID string }
type MessageInserted struct {
	ThreadID  string
	MessageID string
}
type ReportsChanged struct{}
type AgentsChanged struct{}
type StatusChanged struct{ ProjectATag string }

func (EventIngested) isDataChange()   {}
func (ProfileUpdated) isDataChange()  {}
func (ProjectsChanged) isDataChange() {}
func (ThreadUpdated) isDataChange()   {}
func (MessageInserted) isDataChange() {}
func (ReportsChanged) isDataChange()  {}
func (AgentsChanged) isDataChange()   {}
func (StatusChanged) isDataChange()   {}

// ChangesFor maps a freshly ingested event to the DataChange set it
// implies. An event may produce more than one notification (e.g. a
// reply message also touches its thread). Exported so internal/projection
// can derive the same notification shape from its own event subscription.
func ChangesFor(event nostr.Event) []DataChange {
	kind := int(event.Kind)
	changes := []DataChange{EventIngested{Kind: kind}}

	switch kind {
	case gtnostr.KindProfile:
		changes = append(changes, ProfileUpdated{Pubkey: gtnostr.PubKeyToString(event.PubKey)})
	case gtnostr.KindProject:
		changes = append(changes, ProjectsChanged{})
	case gtnostr.KindThreadRoot, gtnostr.KindChannelMessage:
		changes = append(changes, threadChangeFor(event)...)
	case gtnostr.KindConvMetadata:
		if rootID, ok := rootTagOf(event); ok {
			changes = append(changes, ThreadUpdated{ThreadID: rootID})
		}
	case gtnostr.KindReport:
		changes = append(changes, ReportsChanged{})
	case gtnostr.KindAgentDef, gtnostr.KindAgentLesson:
		changes = append(changes, AgentsChanged{})
	case gtnostr.KindProjectStatus:
		if dTag, ok := dTagOf(event); ok {
			changes = append(changes, StatusChanged{ProjectATag: dTag})
		}
	}

	return changes
}

// threadChangeFor distinguishes a thread root (no root "e" tag other
// than itself) from a reply message within an existing thread.
func threadChangeFor(event nostr.Event) []DataChange {
	idHex := gtnostr.IDToString(event.ID)
	rootID, hasRoot := rootTagOf(event)
	if !hasRoot || rootID == idHex {
		return []DataChange{ThreadUpdated{ThreadID: idHex}}
	}
	return []DataChange{MessageInserted{ThreadID: rootID, MessageID: idHex}}
}

func rootTagOf(event nostr.Event) (string, bool) {
	for _, tag := range event.Tags {
		if len(tag) >= 4 && tag[0] == "e" && tag[3] == "root" {
			return tag[1], true
		}
	}
	return "", false
}

func dTagOf(event nostr.Event) (string, bool) {
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			return tag[1], true
		}
	}
	return "", false
}
