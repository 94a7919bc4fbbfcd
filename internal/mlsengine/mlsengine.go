// Package mlsengine implements the group key schedule and message sealing
// of spec.md §4.4, §6.1. It stands in for a certified MLS implementation,
// deriving its epoch secrets and per-message keys with the same HKDF/X25519
// primitives the reference pack's X3DH code uses, and sealing payloads with
// ChaCha20-Poly1305.
//
// Epoch secrets live only in process memory, whichever storage backend is
// in use; they are not written to storage. After a restart, groups already
// in storage can neither send, decrypt nor apply evolutions (an evolution is
// itself sealed under the current epoch secret) until the group is joined
// again through a fresh welcome.
package mlsengine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
	"dialogcore/internal/util/memzero"
	"dialogcore/internal/wireevent"
)

const (
	infoGroupMessage   = "dialogcore-group-message"
	infoGroupEvolution = "dialogcore-group-evolution"
	infoWelcome        = "dialogcore-welcome"
)

type welcomePayload struct {
	GroupID      domaintypes.GroupID            `json:"group_id"`
	NostrGroupID domaintypes.NostrGroupID       `json:"nostr_group_id"`
	Name         string                         `json:"name"`
	Description  string                         `json:"description,omitempty"`
	EpochSecret  []byte                         `json:"epoch_secret"`
	Epoch        uint64                         `json:"epoch"`
	Admins       []domaintypes.PublicIdentifier `json:"admins"`
	Relays       []string                       `json:"relays"`
	Creator      domaintypes.PublicIdentifier   `json:"creator"`
}

type evolutionPayload struct {
	NewEpochSecret []byte `json:"new_epoch_secret"`
	NewEpoch       uint64 `json:"new_epoch"`
}

// Engine is the opaque MLS state holder of spec.md §4.4, parameterized over
// a Storage backend supplied at construction.
type Engine struct {
	log     *zap.Logger
	storage domain.Storage
	signer  wireevent.Signer
	self    domaintypes.PublicIdentifier

	mu             sync.Mutex
	epochSecrets   map[domaintypes.GroupID][]byte
	pendingPayload map[domaintypes.EventID]welcomePayload
}

// New constructs an Engine bound to storage and signing with signer. log is
// nil-safe and defaults to zap.NewNop().
func New(storage domain.Storage, signer wireevent.Signer, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:            log,
		storage:        storage,
		signer:         signer,
		self:           signer.Public(),
		epochSecrets:   make(map[domaintypes.GroupID][]byte),
		pendingPayload: make(map[domaintypes.EventID]welcomePayload),
	}
}

// GenerateKeyPackage produces a fresh X25519 enrollment keypair, signs its
// public half as a kind-443 event, and returns the record the caller should
// persist to recover the private half.
func (e *Engine) GenerateKeyPackage() (domaintypes.Event, domaintypes.KeyPackageRecord, error) {
	priv, pub, err := newX25519Pair()
	if err != nil {
		return domaintypes.Event{}, domaintypes.KeyPackageRecord{}, err
	}

	ev, err := wireevent.Build(e.signer, domaintypes.WireKindKeyPackage, nil, hex.EncodeToString(pub), time.Now().Unix())
	if err != nil {
		return domaintypes.Event{}, domaintypes.KeyPackageRecord{}, errtyp.Wrap(errtyp.CryptoFailure, "signing key package", err)
	}

	record := domaintypes.KeyPackageRecord{
		EventID:          ev.ID,
		PublicIdentifier: e.self,
		PublicComponent:  pub,
		PrivateComponent: priv,
		PublishedAt:      ev.CreatedAt,
	}
	return ev, record, nil
}

// ObserveKeyPackage decodes a peer's published key package event into a
// Storage-ready record with no private component, for the processor to
// persist when it sees one on the relay.
func ObserveKeyPackage(event domaintypes.Event) (domaintypes.KeyPackageRecord, error) {
	pub, err := hex.DecodeString(event.Content)
	if err != nil || len(pub) != curve25519.PointSize {
		return domaintypes.KeyPackageRecord{}, errtyp.New(errtyp.CryptoFailure, "malformed key package content")
	}
	return domaintypes.KeyPackageRecord{
		EventID:          event.ID,
		PublicIdentifier: event.PubKey,
		PublicComponent:  pub,
		PublishedAt:      event.CreatedAt,
	}, nil
}

// CreateGroup generates a fresh MLS group id and epoch secret, builds a gift
// wrap welcome for every member and the initial evolution event announcing
// epoch zero. It preflights that every member has a fetchable key package,
// per spec.md's create_group precondition.
func (e *Engine) CreateGroup(name string, initialMembers []domaintypes.PublicIdentifier, config domaintypes.GroupConfig) (domain.CreateGroupResult, error) {
	records, err := e.storage.ListKeyPackageRecords()
	if err != nil {
		return domain.CreateGroupResult{}, errtyp.Wrap(errtyp.StorageBackend, "listing key package records", err)
	}
	memberPackages := make(map[domaintypes.PublicIdentifier]domaintypes.KeyPackageRecord, len(initialMembers))
	for _, member := range initialMembers {
		rec, ok := latestUnrevoked(records, member)
		if !ok {
			return domain.CreateGroupResult{}, errtyp.MissingKeyPackageFor(string(member))
		}
		memberPackages[member] = rec
	}

	groupID, err := randomHexID(16)
	if err != nil {
		return domain.CreateGroupResult{}, errtyp.Wrap(errtyp.CryptoFailure, "generating group id", err)
	}
	nostrGroupID, err := randomHexID(32)
	if err != nil {
		return domain.CreateGroupResult{}, errtyp.Wrap(errtyp.CryptoFailure, "generating nostr group id", err)
	}
	epochSecret := make([]byte, 32)
	if _, err := rand.Read(epochSecret); err != nil {
		return domain.CreateGroupResult{}, errtyp.Wrap(errtyp.CryptoFailure, "generating epoch secret", err)
	}

	now := time.Now().Unix()
	payload := welcomePayload{
		GroupID:      domaintypes.GroupID(groupID),
		NostrGroupID: domaintypes.NostrGroupID(nostrGroupID),
		Name:         name,
		Description:  config.Description,
		EpochSecret:  epochSecret,
		Epoch:        0,
		Admins:       []domaintypes.PublicIdentifier{e.self},
		Relays:       config.Relays,
		Creator:      e.self,
	}

	welcomes := make([]domaintypes.Event, 0, len(initialMembers))
	for _, member := range initialMembers {
		ev, err := e.sealWelcome(payload, member, memberPackages[member], now)
		if err != nil {
			return domain.CreateGroupResult{}, err
		}
		welcomes = append(welcomes, ev)
	}

	evolutionEv, err := e.sealEvolution(payload.NostrGroupID, epochSecret, epochSecret, 0, 0, now)
	if err != nil {
		return domain.CreateGroupResult{}, err
	}

	e.mu.Lock()
	e.epochSecrets[payload.GroupID] = epochSecret
	e.mu.Unlock()

	group := domaintypes.Group{
		GroupID:      payload.GroupID,
		NostrGroupID: payload.NostrGroupID,
		Name:         name,
		Description:  config.Description,
		Admins:       payload.Admins,
		Relays:       config.Relays,
		Epoch:        0,
		Creator:      e.self,
		Membership:   domaintypes.MembershipActive,
	}
	if err := e.storage.PutGroup(group); err != nil {
		return domain.CreateGroupResult{}, errtyp.Wrap(errtyp.StorageBackend, "persisting created group", err)
	}

	return domain.CreateGroupResult{
		GroupID:        payload.GroupID,
		NostrGroupID:   payload.NostrGroupID,
		WelcomeEvents:  welcomes,
		EvolutionEvent: evolutionEv,
	}, nil
}

// sealWelcome encrypts payload to member's key package under a fresh
// ephemeral X25519 DH, carrying the ephemeral public key and the used key
// package's event id openly so the recipient knows which private half to use.
func (e *Engine) sealWelcome(payload welcomePayload, member domaintypes.PublicIdentifier, rec domaintypes.KeyPackageRecord, now int64) (domaintypes.Event, error) {
	ephPriv, ephPub, err := newX25519Pair()
	if err != nil {
		return domaintypes.Event{}, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return domaintypes.Event{}, errtyp.Wrap(errtyp.CryptoFailure, "marshaling welcome payload", err)
	}

	shared, err := curve25519.X25519(ephPriv, rec.PublicComponent)
	if err != nil {
		return domaintypes.Event{}, errtyp.Wrap(errtyp.CryptoFailure, "welcome key agreement", err)
	}
	key, err := hkdfKey(shared, infoWelcome)
	memzero.All(ephPriv, shared)
	if err != nil {
		return domaintypes.Event{}, err
	}
	defer memzero.Zero(key)

	sealed, nonce, err := seal(key, raw)
	if err != nil {
		return domaintypes.Event{}, err
	}

	content := hex.EncodeToString(ephPub) + hex.EncodeToString(nonce) + hex.EncodeToString(sealed)
	tags := []domaintypes.Tag{
		{domaintypes.TagRecipient, string(member)},
		{"e", string(rec.EventID)},
	}
	return wireevent.Build(e.signer, domaintypes.WireKindGiftWrap, tags, content, now)
}

// sealEvolution wraps a new epoch secret under the current one, the
// membership-change announcement broadcast to the group's own channel.
// currentEpoch is carried openly in a tag so a recipient that cannot decrypt
// the payload can still tell whether it is behind (currentEpoch ahead of its
// own) or has fallen permanently out of step (currentEpoch at or behind its
// own), per spec.md §7's CryptoFailure/ProtocolFailure split.
func (e *Engine) sealEvolution(nostrGroupID domaintypes.NostrGroupID, currentSecret, newSecret []byte, currentEpoch, newEpoch uint64, now int64) (domaintypes.Event, error) {
	raw, err := json.Marshal(evolutionPayload{NewEpochSecret: newSecret, NewEpoch: newEpoch})
	if err != nil {
		return domaintypes.Event{}, errtyp.Wrap(errtyp.CryptoFailure, "marshaling evolution payload", err)
	}
	key, err := hkdfKey(currentSecret, infoGroupEvolution)
	if err != nil {
		return domaintypes.Event{}, err
	}
	defer memzero.Zero(key)

	sealed, nonce, err := seal(key, raw)
	if err != nil {
		return domaintypes.Event{}, err
	}
	content := hex.EncodeToString(nonce) + hex.EncodeToString(sealed)
	tags := []domaintypes.Tag{
		{domaintypes.TagGroup, string(nostrGroupID)},
		{domaintypes.TagEpoch, strconv.FormatUint(currentEpoch, 10)},
	}
	return wireevent.Build(e.signer, domaintypes.WireKindGroupEvolution, tags, content, now)
}

// ProcessWelcome decrypts a gift-wrapped welcome using the local key
// package the inviter referenced, and records it as a pending invite.
// Idempotent on event id in storage: re-delivery opens the welcome again and
// writes the pending invite under the same welcome event id rather than
// adding a second one; the returned invite carries a fresh ReceivedAt.
func (e *Engine) ProcessWelcome(event domaintypes.Event) (domaintypes.PendingInvite, error) {
	keyPackageID := domaintypes.EventID(firstTagValue(event, "e"))
	if keyPackageID == "" {
		return domaintypes.PendingInvite{}, errtyp.New(errtyp.ProtocolFailure, "welcome missing key package reference")
	}

	records, err := e.storage.ListKeyPackageRecords()
	if err != nil {
		return domaintypes.PendingInvite{}, errtyp.Wrap(errtyp.StorageBackend, "listing key package records", err)
	}
	var rec domaintypes.KeyPackageRecord
	var found bool
	for _, r := range records {
		if r.EventID == keyPackageID && r.HasPrivateComponent() {
			rec, found = r, true
			break
		}
	}
	if !found {
		return domaintypes.PendingInvite{}, errtyp.New(errtyp.MissingKeyPackage, "no private key package matching welcome")
	}

	raw, err := hex.DecodeString(event.Content)
	if err != nil || len(raw) < curve25519.PointSize+chacha20poly1305.NonceSize {
		return domaintypes.PendingInvite{}, errtyp.New(errtyp.ProtocolFailure, "malformed welcome content")
	}
	ephPub := raw[:curve25519.PointSize]
	nonce := raw[curve25519.PointSize : curve25519.PointSize+chacha20poly1305.NonceSize]
	ciphertext := raw[curve25519.PointSize+chacha20poly1305.NonceSize:]

	shared, err := curve25519.X25519(rec.PrivateComponent, ephPub)
	if err != nil {
		return domaintypes.PendingInvite{}, errtyp.Wrap(errtyp.CryptoFailure, "welcome key agreement", err)
	}
	key, err := hkdfKey(shared, infoWelcome)
	memzero.Zero(shared)
	if err != nil {
		return domaintypes.PendingInvite{}, err
	}
	defer memzero.Zero(key)

	plaintext, err := open(key, nonce, ciphertext)
	if err != nil {
		// not a member at this epoch: permanent, logged and suppressed rather
		// than retried, per spec.md §7's CryptoFailure disposition.
		e.log.Warn("welcome undecryptable, suppressing", zap.String("event_id", string(event.ID)), zap.Error(err))
		return domaintypes.PendingInvite{}, errtyp.Wrap(errtyp.CryptoFailure, "opening welcome", err)
	}
	defer memzero.Zero(plaintext)

	var payload welcomePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return domaintypes.PendingInvite{}, errtyp.Wrap(errtyp.ProtocolFailure, "decoding welcome payload", err)
	}

	invite := domaintypes.PendingInvite{
		WelcomeEventID:   event.ID,
		Inviter:          event.PubKey,
		ProposedGroupID:  payload.GroupID,
		GroupName:        payload.Name,
		GroupDescription: payload.Description,
		ReceivedAt:       time.Now().Unix(),
		State:            domaintypes.InvitePendingUser,
	}
	if err := e.storage.PutPendingInvite(invite); err != nil {
		return domaintypes.PendingInvite{}, errtyp.Wrap(errtyp.StorageBackend, "persisting pending invite", err)
	}

	e.mu.Lock()
	e.pendingPayload[event.ID] = payload
	e.mu.Unlock()

	return invite, nil
}

// AcceptWelcome materializes the pending invite's payload into a joined
// group and activates its epoch secret.
func (e *Engine) AcceptWelcome(welcomeEventID domaintypes.EventID) (domaintypes.Group, error) {
	e.mu.Lock()
	payload, ok := e.pendingPayload[welcomeEventID]
	e.mu.Unlock()
	if !ok {
		return domaintypes.Group{}, errtyp.New(errtyp.NotFound, "no pending welcome for that event id")
	}

	group := domaintypes.Group{
		GroupID:      payload.GroupID,
		NostrGroupID: payload.NostrGroupID,
		Name:         payload.Name,
		Description:  payload.Description,
		Admins:       payload.Admins,
		Relays:       payload.Relays,
		Epoch:        payload.Epoch,
		Creator:      payload.Creator,
		Membership:   domaintypes.MembershipActive,
	}
	if err := e.storage.PutGroup(group); err != nil {
		return domaintypes.Group{}, errtyp.Wrap(errtyp.StorageBackend, "persisting accepted group", err)
	}
	if err := e.storage.DeletePendingInvite(welcomeEventID); err != nil {
		return domaintypes.Group{}, errtyp.Wrap(errtyp.StorageBackend, "clearing pending invite", err)
	}

	e.mu.Lock()
	e.epochSecrets[payload.GroupID] = payload.EpochSecret
	delete(e.pendingPayload, welcomeEventID)
	e.mu.Unlock()

	return group, nil
}

// CreateMessage seals plaintext under the group's current epoch secret.
func (e *Engine) CreateMessage(groupID domaintypes.GroupID, plaintext string) (domaintypes.Event, error) {
	group, ok, err := e.storage.GetGroup(groupID)
	if err != nil {
		return domaintypes.Event{}, errtyp.Wrap(errtyp.StorageBackend, "loading group", err)
	}
	if !ok {
		return domaintypes.Event{}, errtyp.New(errtyp.NotFound, "unknown group")
	}

	e.mu.Lock()
	secret, ok := e.epochSecrets[groupID]
	e.mu.Unlock()
	if !ok {
		return domaintypes.Event{}, errtyp.New(errtyp.CryptoFailure, "epoch secret not held locally")
	}

	key, err := hkdfKey(secret, infoGroupMessage)
	if err != nil {
		return domaintypes.Event{}, err
	}
	defer memzero.Zero(key)

	sealed, nonce, err := seal(key, []byte(plaintext))
	if err != nil {
		return domaintypes.Event{}, err
	}
	content := hex.EncodeToString(nonce) + hex.EncodeToString(sealed)
	tags := []domaintypes.Tag{
		{domaintypes.TagGroup, string(group.NostrGroupID)},
		{domaintypes.TagEpoch, strconv.FormatUint(group.Epoch, 10)},
	}
	return wireevent.Build(e.signer, domaintypes.WireKindGroupMessage, tags, content, time.Now().Unix())
}

// ProcessMessage decrypts a group message or applies a group evolution,
// per spec.md §4.6's dispatch table. Events on an `h` tag this process does
// not recognize are ignored rather than errored.
func (e *Engine) ProcessMessage(event domaintypes.Event) (domain.ProcessResult, error) {
	nostrGroupID := domaintypes.NostrGroupID(firstTagValue(event, domaintypes.TagGroup))
	if nostrGroupID == "" {
		return domain.ProcessResult{Kind: domain.ProcessIgnored}, nil
	}

	group, found, err := e.findByNostrGroupID(nostrGroupID)
	if err != nil {
		return domain.ProcessResult{}, err
	}
	if !found {
		return domain.ProcessResult{Kind: domain.ProcessIgnored}, nil
	}

	switch wireevent.Classify(event.Kind) {
	case domaintypes.KindGroupMessage:
		return e.processGroupMessage(group, event)
	case domaintypes.KindGroupEvolution:
		return e.processGroupEvolution(group, event)
	default:
		return domain.ProcessResult{Kind: domain.ProcessIgnored}, nil
	}
}

func (e *Engine) processGroupMessage(group domaintypes.Group, event domaintypes.Event) (domain.ProcessResult, error) {
	e.mu.Lock()
	secret, ok := e.epochSecrets[group.GroupID]
	e.mu.Unlock()
	if !ok {
		return domain.ProcessResult{}, errtyp.New(errtyp.ProtocolFailure, "no epoch secret for group; awaiting evolution or rejoin").Retry()
	}

	raw, err := hex.DecodeString(event.Content)
	if err != nil || len(raw) < chacha20poly1305.NonceSize {
		return domain.ProcessResult{}, errtyp.New(errtyp.ProtocolFailure, "malformed group message content")
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]

	key, err := hkdfKey(secret, infoGroupMessage)
	if err != nil {
		return domain.ProcessResult{}, err
	}
	defer memzero.Zero(key)

	plaintext, err := open(key, nonce, ciphertext)
	if err != nil {
		return domain.ProcessResult{}, e.openFailureDisposition(event, group.Epoch, "opening group message")
	}
	defer memzero.Zero(plaintext)

	msg := domaintypes.Message{
		EventID:        event.ID,
		GroupID:        group.GroupID,
		Author:         event.PubKey,
		Content:        string(plaintext),
		RelayTimestamp: event.CreatedAt,
		ReceivedAt:     time.Now().Unix(),
	}
	return domain.ProcessResult{Kind: domain.ProcessDecrypted, Message: msg, GroupID: group.GroupID}, nil
}

func (e *Engine) processGroupEvolution(group domaintypes.Group, event domaintypes.Event) (domain.ProcessResult, error) {
	e.mu.Lock()
	secret, ok := e.epochSecrets[group.GroupID]
	e.mu.Unlock()
	if !ok {
		return domain.ProcessResult{}, errtyp.New(errtyp.ProtocolFailure, "no epoch secret for group; cannot apply evolution").Retry()
	}

	raw, err := hex.DecodeString(event.Content)
	if err != nil || len(raw) < chacha20poly1305.NonceSize {
		return domain.ProcessResult{}, errtyp.New(errtyp.ProtocolFailure, "malformed evolution content")
	}
	nonce, ciphertext := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]

	key, err := hkdfKey(secret, infoGroupEvolution)
	if err != nil {
		return domain.ProcessResult{}, err
	}
	defer memzero.Zero(key)

	plaintext, err := open(key, nonce, ciphertext)
	if err != nil {
		return domain.ProcessResult{}, e.openFailureDisposition(event, group.Epoch, "opening evolution")
	}
	defer memzero.Zero(plaintext)

	var payload evolutionPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return domain.ProcessResult{}, errtyp.Wrap(errtyp.ProtocolFailure, "decoding evolution payload", err)
	}

	group.Epoch = payload.NewEpoch
	if err := e.storage.PutGroup(group); err != nil {
		return domain.ProcessResult{}, errtyp.Wrap(errtyp.StorageBackend, "persisting evolved group", err)
	}

	e.mu.Lock()
	e.epochSecrets[group.GroupID] = payload.NewEpochSecret
	e.mu.Unlock()

	return domain.ProcessResult{Kind: domain.ProcessEvolutionApplied, GroupID: group.GroupID, NewEpoch: payload.NewEpoch}, nil
}

// openFailureDisposition classifies an AEAD-open failure against the
// event's cleartext epoch tag: a payload sealed under an epoch newer than
// our local state means we simply have not caught up yet (spec.md §9's open
// question), a retryable ProtocolFailure; a payload at or behind our local
// epoch that still won't open means we are not a member at that epoch and
// never will be again, a non-retryable CryptoFailure per spec.md §7's table.
func (e *Engine) openFailureDisposition(event domaintypes.Event, localEpoch uint64, what string) error {
	eventEpoch, err := strconv.ParseUint(firstTagValue(event, domaintypes.TagEpoch), 10, 64)
	if err != nil {
		e.log.Warn(what+": missing or malformed epoch tag", zap.String("event_id", string(event.ID)))
		return errtyp.New(errtyp.ProtocolFailure, what+": missing or malformed epoch tag")
	}
	if eventEpoch > localEpoch {
		e.log.Info(what+": epoch ahead of local state, retrying later", zap.String("event_id", string(event.ID)), zap.Uint64("event_epoch", eventEpoch), zap.Uint64("local_epoch", localEpoch))
		return errtyp.New(errtyp.ProtocolFailure, what+": epoch ahead of local state").Retry()
	}
	e.log.Warn(what+": not a member at this epoch, suppressing", zap.String("event_id", string(event.ID)), zap.Uint64("event_epoch", eventEpoch), zap.Uint64("local_epoch", localEpoch))
	return errtyp.New(errtyp.CryptoFailure, what+": not a member at this epoch")
}

func (e *Engine) findByNostrGroupID(nostrGroupID domaintypes.NostrGroupID) (domaintypes.Group, bool, error) {
	groups, err := e.storage.ListGroups()
	if err != nil {
		return domaintypes.Group{}, false, errtyp.Wrap(errtyp.StorageBackend, "listing groups", err)
	}
	for _, g := range groups {
		if g.NostrGroupID == nostrGroupID {
			return g, true, nil
		}
	}
	return domaintypes.Group{}, false, nil
}

func (e *Engine) ListGroups() ([]domaintypes.Group, error) { return e.storage.ListGroups() }

func (e *Engine) ListMessages(groupID domaintypes.GroupID) ([]domaintypes.Message, error) {
	return e.storage.ListMessages(groupID)
}

func (e *Engine) ListPendingWelcomes() ([]domaintypes.PendingInvite, error) {
	return e.storage.ListPendingInvites()
}

func firstTagValue(event domaintypes.Event, key string) string {
	values := event.TagValues(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func latestUnrevoked(records []domaintypes.KeyPackageRecord, who domaintypes.PublicIdentifier) (domaintypes.KeyPackageRecord, bool) {
	var best domaintypes.KeyPackageRecord
	var found bool
	for _, r := range records {
		if r.PublicIdentifier != who || r.Revoked {
			continue
		}
		if !found || r.PublishedAt > best.PublishedAt {
			best, found = r, true
		}
	}
	return best, found
}

func newX25519Pair() (priv, pub []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, errtyp.Wrap(errtyp.CryptoFailure, "generating x25519 scalar", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, errtyp.Wrap(errtyp.CryptoFailure, "deriving x25519 public key", err)
	}
	return priv, pub, nil
}

func hkdfKey(secret []byte, info string) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errtyp.Wrap(errtyp.CryptoFailure, "deriving key", err)
	}
	return key, nil
}

func seal(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, errtyp.Wrap(errtyp.CryptoFailure, "constructing aead", err)
	}
	nonce = make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, errtyp.Wrap(errtyp.CryptoFailure, "generating nonce", err)
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errtyp.Wrap(errtyp.CryptoFailure, "constructing aead", err)
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

func randomHexID(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var _ domain.MLSEngine = (*Engine)(nil)
