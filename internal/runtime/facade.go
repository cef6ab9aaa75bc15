package runtime

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/bunker"
	"github.com/tenex-go/tenexcore/internal/corerr"
)

// CommandFacade is the single entry point every frontend calls into.
// Commands return to the caller as soon as their intent is durable
// (spec 4.7); the facade itself adds one thing CoreRuntime's bare
// methods don't have: a single exclusive-call guard, the same
// mutex-serializes-access idiom `internal/signer/serialize.go`'s
// `Serialized.mu` uses for signing (spec 4.5), applied here to the whole
// command surface so two frontends issuing commands at once never
// race CoreRuntime's mutable state (the signer, the bunker's pending
// map, the adaptive sync interval).
//
// A second requirement the plain mutex doesn't cover: a blocking call
// re-entering from the same goroutine while the first is still
// pending must fail fast instead of deadlocking on its own lock
// (spec 4.7). enter/leave track which goroutine currently holds mu.
type CommandFacade struct {
	rt *CoreRuntime
	mu sync.Mutex

	ownerMu sync.Mutex
	owner   uint64
	pending bool
}

// NewCommandFacade wraps a CoreRuntime.
func NewCommandFacade(rt *CoreRuntime) *CommandFacade {
	return &CommandFacade{rt: rt}
}

// enter claims the exclusive command slot for the calling goroutine,
// failing fast if that same goroutine already has one pending rather
// than blocking on mu and deadlocking against itself. Every exported
// blocking command calls it and defers the returned release.
func (f *CommandFacade) enter() (release func(), err error) {
	gid := goroutineID()

	f.ownerMu.Lock()
	if f.pending && f.owner == gid {
		f.ownerMu.Unlock()
		return nil, corerr.New(corerr.KindReentrant, "command already pending on this goroutine", "")
	}
	f.ownerMu.Unlock()

	f.mu.Lock()
	f.ownerMu.Lock()
	f.owner = gid
	f.pending = true
	f.ownerMu.Unlock()

	return func() {
		f.ownerMu.Lock()
		f.pending = false
		f.ownerMu.Unlock()
		f.mu.Unlock()
	}, nil
}

// goroutineID extracts the calling goroutine's id from its own stack
// trace header ("goroutine 123 [running]: ..."). The id is unexported
// by the runtime; this is the standard workaround in the absence of a
// published goroutine-id dependency in this module's stack.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.Fields(buf[:n])
	if len(field) < 2 {
		return 0
	}
	id, _ := strconv.ParseUint(string(field[1]), 10, 64)
	return id
}

func (f *CommandFacade) Login(ctx context.Context, nsecBech32, passphrase, runtimeDir string) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()
	return f.rt.Login(ctx, nsecBech32, passphrase, runtimeDir)
}

func (f *CommandFacade) SendThread(ctx context.Context, projectPubkeyHex, projectDTag, title, content, agentPubkey string, nudgeIDs, skillIDs []string) (string, error) {
	release, err := f.enter()
	if err != nil {
		return "", err
	}
	defer release()
	return f.rt.SendThread(ctx, projectPubkeyHex, projectDTag, title, content, agentPubkey, nudgeIDs, skillIDs)
}

func (f *CommandFacade) SendMessage(ctx context.Context, threadID, replyToID, content, agentPubkey string) (string, error) {
	release, err := f.enter()
	if err != nil {
		return "", err
	}
	defer release()
	return f.rt.SendMessage(ctx, threadID, replyToID, content, agentPubkey)
}

func (f *CommandFacade) CreateProject(ctx context.Context, name, description string, agentIDs, mcpToolIDs []string) (string, error) {
	release, err := f.enter()
	if err != nil {
		return "", err
	}
	defer release()
	return f.rt.CreateProject(ctx, name, description, agentIDs, mcpToolIDs)
}

// GetProfileName is a read and doesn't need the exclusive guard:
// Projection's own accessors are already RWMutex-protected.
func (f *CommandFacade) GetProfileName(pubkeyHex string) string {
	return f.rt.GetProfileName(pubkeyHex)
}

// LoggedIn is a read-only probe frontends use to distinguish
// not-logged-in from other command failures.
func (f *CommandFacade) LoggedIn() bool {
	return f.rt.LoggedIn()
}

func (f *CommandFacade) StartBunker(ctx context.Context) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()
	return f.rt.StartBunker(ctx)
}

func (f *CommandFacade) StopBunker() error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()
	return f.rt.StopBunker()
}

// BunkerRunning is a read-only probe of the bunker listener's state.
func (f *CommandFacade) BunkerRunning() bool {
	return f.rt.BunkerRunning()
}

func (f *CommandFacade) Approve(ctx context.Context, requestID string, createRule bool) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()
	return f.rt.Approve(ctx, requestID, createRule)
}

func (f *CommandFacade) Deny(requestID string) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()
	return f.rt.Deny(requestID)
}

func (f *CommandFacade) Publish(ctx context.Context, template *nostr.Event) (string, error) {
	release, err := f.enter()
	if err != nil {
		return "", err
	}
	defer release()
	return f.rt.Publish(ctx, template)
}

func (f *CommandFacade) Sync(ctx context.Context) {
	release, err := f.enter()
	if err != nil {
		return
	}
	defer release()
	f.rt.TriggerSync(ctx)
}

// PendingBunkerRequests is a read-only convenience for frontends
// rendering the approval queue; not part of spec 4.7's command table
// but needed to drive Approve/Deny from a UI.
func (f *CommandFacade) PendingBunkerRequests() ([]bunker.Request, error) {
	if f.rt.Bunker == nil {
		return nil, fmt.Errorf("no signer: call Login first")
	}
	return f.rt.Bunker.PendingRequests(), nil
}

// RemoveRule deletes a standing auto-approve rule by exact
// (requester, kind) match (kind -1 matches an any-kind rule).
func (f *CommandFacade) RemoveRule(requesterPubkey string, kind int) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()
	if f.rt.Bunker == nil {
		return fmt.Errorf("no signer: call Login first")
	}
	f.rt.Bunker.RemoveRule(requesterPubkey, kind)
	return nil
}

// Rules is a read-only snapshot of standing auto-approve rules.
func (f *CommandFacade) Rules() ([]bunker.AutoApproveRule, error) {
	if f.rt.Bunker == nil {
		return nil, fmt.Errorf("no signer: call Login first")
	}
	return f.rt.Bunker.Rules(), nil
}

// AuditLog is a read-only snapshot of past bunker approval decisions.
func (f *CommandFacade) AuditLog() ([]bunker.AuditEntry, error) {
	if f.rt.Bunker == nil {
		return nil, fmt.Errorf("no signer: call Login first")
	}
	return f.rt.Bunker.AuditLog(), nil
}
