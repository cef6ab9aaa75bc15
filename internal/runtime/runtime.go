// Package runtime wires EventStore, Signer, RelayPool, BunkerService,
// DomainProjection, and NegentropySync into CoreRuntime, the single
// owner every frontend (CLI, TUI, ResponsesServer) talks to through
// CommandFacade (spec 4.7).
package runtime

import (
	"context"
	"errors"
	"fmt"

	"fiatjaf.com/nostr"
	"fiatjaf.com/nostr/nip19"

	"github.com/tenex-go/tenexcore/internal/bunker"
	"github.com/tenex-go/tenexcore/internal/corerr"
	"github.com/tenex-go/tenexcore/internal/credstore"
	"github.com/tenex-go/tenexcore/internal/diag"
	"github.com/tenex-go/tenexcore/internal/eventstore"
	"github.com/tenex-go/tenexcore/internal/negentropy"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
	"github.com/tenex-go/tenexcore/internal/projection"
	keystore "github.com/tenex-go/tenexcore/internal/signer"
)

// CoreRuntime owns every long-lived core component and exposes the
// command surface of spec 4.7. It never renders anything; frontends
// read state through Projection and DataChange, and submit intent
// through CommandFacade's typed methods.
type CoreRuntime struct {
	Store      eventstore.Store
	Pool       *gtnostr.RelayPool
	Projection *projection.Store
	Bunker     *bunker.Service
	Sync       *negentropy.Syncer
	Diag       *diag.Channel
	Keys       *keystore.Store
	Credentials *credstore.Store

	publisher *gtnostr.Publisher
}

// New assembles a CoreRuntime from its already-constructed pieces.
// Publisher and Bunker are nil until Login (no signer yet); callers
// building the runtime fresh should call Login or AutoLogin first.
// creds may be nil, which disables CredentialStore persistence (every
// Login becomes a one-off session with no auto-login on the next
// boot).
func New(store eventstore.Store, pool *gtnostr.RelayPool, proj *projection.Store, sync *negentropy.Syncer, diagCh *diag.Channel, keys *keystore.Store, creds *credstore.Store) *CoreRuntime {
	return &CoreRuntime{
		Store:       store,
		Pool:        pool,
		Projection:  proj,
		Sync:        sync,
		Diag:        diagCh,
		Keys:        keys,
		Credentials: creds,
	}
}

// Login decodes a bech32 nsec, persists it under passphrase, and wires
// a Publisher and BunkerService from the resulting signer (spec 4.7:
// "Keys loaded; CredentialStore updated if passphrase").
func (rt *CoreRuntime) Login(ctx context.Context, nsecBech32, passphrase, runtimeDir string) error {
	privkeyHex, err := decodeNsec(nsecBech32)
	if err != nil {
		return fmt.Errorf("invalid bech32: %w", err)
	}

	signer, err := rt.Keys.Import(privkeyHex, passphrase)
	if err != nil {
		return fmt.Errorf("wrong passphrase: %w", err)
	}

	rt.publisher = gtnostr.NewPublisher(signer, rt.Pool, runtimeDir)
	rt.Bunker = bunker.New(signer, rt.Pool, rt.Store, rt.Diag)

	if rt.Credentials != nil {
		if err := rt.Credentials.Save(nsecBech32, passphrase); err != nil && rt.Diag != nil {
			rt.Diag.Error(corerr.KindStorage, "credential store update failed: "+err.Error())
		}
	}
	return nil
}

// AutoLogin runs spec 4.10's boot-time auto-login sequence against
// CredentialStore. A nil Credentials, an item_not_found result, or a
// stored blob that needs a passphrase (see AutoLoginWithPassphrase) all
// leave the runtime logged out without surfacing an error; any other
// failure is reported through the returned error so the caller can
// decide whether to prompt for manual login.
func (rt *CoreRuntime) AutoLogin(ctx context.Context, runtimeDir string) error {
	if rt.Credentials == nil {
		return nil
	}

	nsecBech32, err := rt.Credentials.Load()
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		return nil
	case credstore.NeedsPassphrase(err):
		return nil // caller must retry via AutoLoginWithPassphrase
	case err != nil:
		return fmt.Errorf("could not auto-login: %w", err)
	}

	return rt.finishAutoLogin(nsecBech32, runtimeDir)
}

// AutoLoginWithPassphrase completes auto-login when the stored
// credential lives in CredentialStore's encrypted fallback blob and
// needs a passphrase to decrypt (spec 4.10 step 2/3).
func (rt *CoreRuntime) AutoLoginWithPassphrase(ctx context.Context, passphrase, runtimeDir string) error {
	if rt.Credentials == nil {
		return fmt.Errorf("no credential store configured")
	}
	nsecBech32, err := rt.Credentials.LoadWithPassphrase(passphrase)
	if err != nil {
		return fmt.Errorf("could not auto-login: %w", err)
	}
	return rt.finishAutoLogin(nsecBech32, runtimeDir)
}

func (rt *CoreRuntime) finishAutoLogin(nsecBech32, runtimeDir string) error {
	privkeyHex, err := decodeNsec(nsecBech32)
	if err != nil {
		rt.Credentials.Delete()
		return fmt.Errorf("stored credential was invalid; please log in again")
	}

	local, err := gtnostr.NewLocalSigner(privkeyHex)
	if err != nil {
		rt.Credentials.Delete()
		return fmt.Errorf("stored credential was invalid; please log in again")
	}

	signer := keystore.Wrap(local)
	rt.publisher = gtnostr.NewPublisher(signer, rt.Pool, runtimeDir)
	rt.Bunker = bunker.New(signer, rt.Pool, rt.Store, rt.Diag)
	return nil
}

func decodeNsec(nsecBech32 string) (string, error) {
	prefix, value, err := nip19.Decode(nsecBech32)
	if err != nil {
		return "", err
	}
	if prefix != "nsec" {
		return "", fmt.Errorf("expected nsec, got %s", prefix)
	}
	hexKey, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected nsec payload type")
	}
	return hexKey, nil
}

// requireSigner returns corerr-free plumbing error text for commands
// that need a logged-in signer (spec 4.7's "no signer" error case).
func (rt *CoreRuntime) requireSigner() error {
	if rt.publisher == nil {
		return fmt.Errorf("no signer: call Login first")
	}
	return nil
}

// LoggedIn reports whether a signer is wired, for frontends that need
// to distinguish "not logged in" from other failures (spec 6.4's exit
// code 3).
func (rt *CoreRuntime) LoggedIn() bool {
	return rt.publisher != nil
}

// SendThread publishes a new root thread/conversation (spec 4.7).
func (rt *CoreRuntime) SendThread(ctx context.Context, projectPubkeyHex, projectDTag, title, content, agentPubkey string, nudgeIDs, skillIDs []string) (string, error) {
	if err := rt.requireSigner(); err != nil {
		return "", err
	}
	if content == "" {
		return "", fmt.Errorf("content must be non-empty")
	}

	event, err := gtnostr.NewThreadEvent(gtnostr.KindThreadRoot, projectPubkeyHex, projectDTag, title, content, agentPubkey, nudgeIDs, skillIDs)
	if err != nil {
		return "", err
	}
	if err := rt.publisher.Publish(ctx, event); err != nil {
		return "", err
	}
	return gtnostr.IDToString(event.ID), nil
}

// SendMessage publishes a reply into an existing thread. A thread id
// unknown to the local projection is not an error: the message is
// still signed and sent fire-and-forget (spec 4.7).
func (rt *CoreRuntime) SendMessage(ctx context.Context, threadID, replyToID, content, agentPubkey string) (string, error) {
	if err := rt.requireSigner(); err != nil {
		return "", err
	}
	if content == "" {
		return "", fmt.Errorf("content must be non-empty")
	}

	event, err := gtnostr.NewMessageEvent(threadID, replyToID, content, agentPubkey, false, "", "")
	if err != nil {
		return "", err
	}
	if err := rt.publisher.Publish(ctx, event); err != nil {
		return "", err
	}
	return gtnostr.IDToString(event.ID), nil
}

// CreateProject publishes a new project definition, returning its
// addressable coordinate (spec 4.7).
func (rt *CoreRuntime) CreateProject(ctx context.Context, name, description string, agentIDs, mcpToolIDs []string) (string, error) {
	if err := rt.requireSigner(); err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("name must be non-empty")
	}

	dTag := slugify(name)
	event, err := gtnostr.NewProjectEvent(gtnostr.ProjectParams{
		DTag:        dTag,
		Title:       name,
		Description: description,
		AgentDefIDs: agentIDs,
		MCPToolIDs:  mcpToolIDs,
	})
	if err != nil {
		return "", err
	}
	if err := rt.publisher.PublishReplaceable(ctx, event); err != nil {
		return "", err
	}
	return gtnostr.Coordinate(gtnostr.KindProject, rt.publisher.Signer().GetPublicKey(), dTag), nil
}

// GetProfileName returns the best display name for pubkeyHex, falling
// back to a shortened hex pubkey when no profile is known (spec 4.7).
func (rt *CoreRuntime) GetProfileName(pubkeyHex string) string {
	if profile, ok := rt.Projection.Profile(pubkeyHex); ok {
		return profile.BestName()
	}
	if len(pubkeyHex) >= 8 {
		return pubkeyHex[:8]
	}
	return pubkeyHex
}

// StartBunker begins listening for inbound NIP-46 requests.
func (rt *CoreRuntime) StartBunker(ctx context.Context) error {
	if rt.Bunker == nil {
		return fmt.Errorf("no signer: call Login first")
	}
	rt.Bunker.Start(ctx)
	return nil
}

// StopBunker halts the bunker listener.
func (rt *CoreRuntime) StopBunker() error {
	if rt.Bunker == nil {
		return fmt.Errorf("no signer: call Login first")
	}
	rt.Bunker.Stop()
	return nil
}

// BunkerRunning reports whether the bunker listener is active.
func (rt *CoreRuntime) BunkerRunning() bool {
	return rt.Bunker != nil && rt.Bunker.Running()
}

// Approve signs and replies to a pending bunker request, optionally
// turning it into a standing auto-approval rule.
func (rt *CoreRuntime) Approve(ctx context.Context, requestID string, createRule bool) error {
	if rt.Bunker == nil {
		return fmt.Errorf("no signer: call Login first")
	}
	if createRule {
		for _, req := range rt.Bunker.PendingRequests() {
			if req.ID == requestID {
				kind := req.EventKind
				rt.Bunker.AddAutoApproveRule(bunker.AutoApproveRule{
					ID:              requestID,
					RequesterPubkey: req.RequesterPubkey,
					EventKind:       &kind,
				})
				break
			}
		}
	}
	if !rt.Bunker.Approve(ctx, requestID) {
		return fmt.Errorf("request %s not pending", requestID)
	}
	return nil
}

// Deny rejects a pending bunker request.
func (rt *CoreRuntime) Deny(requestID string) error {
	if rt.Bunker == nil {
		return fmt.Errorf("no signer: call Login first")
	}
	if !rt.Bunker.Deny(requestID) {
		return fmt.Errorf("request %s not pending", requestID)
	}
	return nil
}

// Publish signs and sends a pre-filled event template as-is, returning
// its computed id (spec 4.7 "Publish(event_template)").
func (rt *CoreRuntime) Publish(ctx context.Context, template *nostr.Event) (string, error) {
	if err := rt.requireSigner(); err != nil {
		return "", err
	}
	if err := rt.publisher.Publish(ctx, template); err != nil {
		return "", err
	}
	return gtnostr.IDToString(template.ID), nil
}

// TriggerSync runs one NegentropySync reconciliation cycle immediately,
// independent of its adaptive schedule (spec 4.7 "Sync()").
func (rt *CoreRuntime) TriggerSync(ctx context.Context) {
	rt.Sync.RunOnce(ctx)
}

func slugify(name string) string {
	out := make([]rune, 0, len(name))
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
			lastDash = false
		case r >= 'A' && r <= 'Z':
			out = append(out, r-'A'+'a')
			lastDash = false
		default:
			if !lastDash && len(out) > 0 {
				out = append(out, '-')
				lastDash = true
			}
		}
	}
	for len(out) > 0 && out[len(out)-1] == '-' {
		out = out[:len(out)-1]
	}
	return string(out)
}
