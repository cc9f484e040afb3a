package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatstatus-backend/cache"
	"chatstatus-backend/models"
	"chatstatus-backend/store"
	"chatstatus-backend/utils"

	"github.com/sirupsen/logrus"
)

const ChatsCollection = "chats"

// ChatPath addresses any chat document; groups are chats, so GroupPath is the
// same path.
func ChatPath(chatID string) string {
	return ChatsCollection + "/" + chatID
}

func GroupPath(groupID string) string {
	return ChatPath(groupID)
}

func MessagesCollection(chatID string) string {
	return ChatsCollection + "/" + chatID + "/messages"
}

// Outcome of RequestJoin: what actually happened to the caller.
type JoinOutcome string

const (
	JoinOutcomeAlreadyMember JoinOutcome = "already_member"
	JoinOutcomeJoined        JoinOutcome = "joined"
	JoinOutcomeRequested     JoinOutcome = "requested"
)

// Membership owns the lifecycle of a group's membership set, admin set,
// visibility flag and pending join requests.
//
// Every operation re-reads the group document, checks its preconditions
// against that fresh snapshot, then applies a merge write built from
// commutative array operators. The check and the write are not atomic as a
// pair; concurrent writers can interleave, and the array operators are what
// keeps the membership sets consistent when they do. Duplicate system notices
// remain possible under such races.
type Membership struct {
	store  store.Store
	notify *Notification // optional
}

func NewMembership(st store.Store, notify *Notification) *Membership {
	return &Membership{store: st, notify: notify}
}

// CreateGroup atomically creates the group document with the creator as sole
// participant and admin. The PIN is re-rolled until no other group holds it;
// the invite code gets the same treatment.
func (m *Membership) CreateGroup(ctx context.Context, actor models.Principal, req models.CreateGroupRequest) (*models.Group, error) {
	visibility := models.VisibilityPublic
	if req.Visibility == string(models.VisibilityPrivate) {
		visibility = models.VisibilityPrivate
	}

	pin, err := m.uniqueCode(ctx, "groupPin", func() string {
		for {
			candidate := utils.RandomPin()
			if cache.ReservePin(ctx, candidate) {
				return candidate
			}
		}
	})
	if err != nil {
		return nil, err
	}

	inviteCode, err := m.uniqueCode(ctx, "inviteCode", utils.RandomInviteCode)
	if err != nil {
		return nil, err
	}

	doc, err := m.store.Create(ctx, ChatsCollection, map[string]interface{}{
		"type":           "group",
		"name":           req.Name,
		"description":    req.Description,
		"visibility":     string(visibility),
		"participantIds": []string{actor.ID},
		"adminIds":       []string{actor.ID},
		"createdBy":      actor.ID,
		"joinRequests":   []interface{}{},
		"groupPin":       pin,
		"inviteCode":     inviteCode,
		"createdAt":      store.ServerNow{},
		"lastMessageAt":  store.ServerNow{},
	})
	if err != nil {
		return nil, err
	}

	cache.CacheInviteCode(ctx, inviteCode, doc.ID)
	logrus.WithFields(logrus.Fields{"group": doc.ID, "creator": actor.ID}).Info("group created")

	return m.LoadGroup(ctx, doc.ID)
}

// uniqueCode rolls candidates from gen until no existing group carries the
// value in the given field. The loop is unbounded in principle; the value
// spaces are large enough that it terminates in practice.
func (m *Membership) uniqueCode(ctx context.Context, field string, gen func() string) (string, error) {
	for {
		candidate := gen()
		existing, err := m.store.Query(ctx, ChatsCollection, store.Where(field, "==", candidate))
		if err != nil {
			return "", err
		}
		if len(existing) == 0 {
			return candidate, nil
		}
	}
}

// LoadGroup fetches and decodes a group document.
func (m *Membership) LoadGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	return group, err
}

func (m *Membership) loadGroupDoc(ctx context.Context, groupID string) (*models.Group, *store.Document, error) {
	doc, err := m.store.Get(ctx, GroupPath(groupID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrGroupNotFound
		}
		return nil, nil, err
	}
	if doc.StringField("type") != "group" {
		return nil, nil, ErrGroupNotFound
	}
	return models.GroupFromDoc(doc), doc, nil
}

// FindByPin resolves a group by its 6-digit PIN.
func (m *Membership) FindByPin(ctx context.Context, pin string) (*models.Group, error) {
	docs, err := m.store.Query(ctx, ChatsCollection, store.Where("groupPin", "==", pin))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrGroupNotFound
	}
	return models.GroupFromDoc(docs[0]), nil
}

// FindByInviteCode resolves a group by invite code, consulting the cache
// before querying the store.
func (m *Membership) FindByInviteCode(ctx context.Context, code string) (*models.Group, error) {
	if groupID, ok := cache.LookupInviteCode(ctx, code); ok {
		if group, err := m.LoadGroup(ctx, groupID); err == nil && group.InviteCode == code {
			return group, nil
		}
	}
	docs, err := m.store.Query(ctx, ChatsCollection, store.Where("inviteCode", "==", code))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrGroupNotFound
	}
	group := models.GroupFromDoc(docs[0])
	cache.CacheInviteCode(ctx, code, group.ID)
	return group, nil
}

// RequestJoin is the front door for joining a group by ID. Members pass
// through unchanged; public groups admit the caller directly; private groups
// record a silent pending request.
func (m *Membership) RequestJoin(ctx context.Context, groupID string, actor models.Principal) (JoinOutcome, error) {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return "", err
	}

	if group.IsParticipant(actor.ID) {
		return JoinOutcomeAlreadyMember, nil
	}

	if group.Visibility == models.VisibilityPublic {
		err := m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
			"participantIds": store.UnionOf(actor.ID),
			"lastMessageAt":  store.ServerNow{},
		})
		if err != nil {
			return "", err
		}
		m.appendNotice(ctx, groupID, actor, models.EventMemberJoined, fmt.Sprintf("%s joined the group", displayName(actor)))
		return JoinOutcomeJoined, nil
	}

	if _, pending := group.PendingRequest(actor.ID); pending {
		return "", ErrDuplicateRequest
	}

	// silent to other members until an admin resolves it
	err = m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
		"joinRequests": store.UnionOf(map[string]interface{}{
			"userId":      actor.ID,
			"userName":    actor.DisplayName,
			"userEmail":   actor.Email,
			"requestedAt": time.Now().UTC(),
			"status":      models.JoinRequestPending,
		}),
	})
	if err != nil {
		return "", err
	}
	return JoinOutcomeRequested, nil
}

// ApproveRequest admits a pending requester: the request is deleted, the user
// joins, and a member_joined notice lands in the log.
func (m *Membership) ApproveRequest(ctx context.Context, groupID, requestUserID string, actor models.Principal) error {
	group, doc, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsAdmin(actor.ID) {
		return ErrNotAuthorized
	}

	raw, req, ok := findRawRequest(doc, requestUserID)
	if !ok {
		return ErrRequestNotFound
	}

	err = m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
		"joinRequests":   store.RemoveOf(raw),
		"participantIds": store.UnionOf(requestUserID),
		"lastMessageAt":  store.ServerNow{},
	})
	if err != nil {
		return err
	}

	joined := models.Principal{ID: req.UserID, DisplayName: req.UserName, Email: req.UserEmail}
	m.appendNotice(ctx, groupID, joined, models.EventMemberJoined, fmt.Sprintf("%s joined the group", displayName(joined)))

	if m.notify != nil {
		go m.notify.NotifyRequestApproved(context.Background(), group, requestUserID)
	}
	return nil
}

// RejectRequest deletes a pending request. No membership change, no notice.
func (m *Membership) RejectRequest(ctx context.Context, groupID, requestUserID string, actor models.Principal) error {
	group, doc, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsAdmin(actor.ID) {
		return ErrNotAuthorized
	}

	raw, _, ok := findRawRequest(doc, requestUserID)
	if !ok {
		return ErrRequestNotFound
	}

	return m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
		"joinRequests": store.RemoveOf(raw),
	})
}

// AddMember adds target directly, bypassing the request flow. Used by the
// PIN/invite-code join and by admins adding recent contacts; authorization
// for those paths sits with the caller, the engine only guards membership.
func (m *Membership) AddMember(ctx context.Context, groupID string, target, actor models.Principal) error {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if group.IsParticipant(target.ID) {
		return ErrAlreadyMember
	}

	err = m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
		"participantIds": store.UnionOf(target.ID),
		"lastMessageAt":  store.ServerNow{},
	})
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s joined the group", displayName(target))
	if actor.ID != target.ID {
		text = fmt.Sprintf("%s added %s to the group", displayName(actor), displayName(target))
	}
	m.appendNotice(ctx, groupID, target, models.EventMemberJoined, text)

	if m.notify != nil && actor.ID != target.ID {
		go m.notify.NotifyMemberAdded(context.Background(), group, actor, target)
	}
	return nil
}

// RemoveMember drops target from both membership sets. The creator is
// untouchable.
func (m *Membership) RemoveMember(ctx context.Context, groupID, targetID string, actor models.Principal) error {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsAdmin(actor.ID) {
		return ErrNotAuthorized
	}
	if targetID == group.CreatedBy {
		return ErrCannotRemoveCreator
	}

	err = m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
		"participantIds": store.RemoveOf(targetID),
		"adminIds":       store.RemoveOf(targetID),
		"lastMessageAt":  store.ServerNow{},
	})
	if err != nil {
		return err
	}

	m.appendNotice(ctx, groupID, actor, models.EventMemberLeft,
		fmt.Sprintf("%s was removed by %s", m.lookupName(ctx, targetID), displayName(actor)))
	return nil
}

// LeaveGroup is self-removal. The member_left notice is written BEFORE the
// removal commits: once removed, the actor has no write access to the
// group's message log anymore.
func (m *Membership) LeaveGroup(ctx context.Context, groupID string, actor models.Principal) error {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if actor.ID == group.CreatedBy {
		return ErrCreatorCannotLeave
	}

	m.appendNotice(ctx, groupID, actor, models.EventMemberLeft, fmt.Sprintf("%s left the group", displayName(actor)))

	return m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
		"participantIds": store.RemoveOf(actor.ID),
		"adminIds":       store.RemoveOf(actor.ID),
	})
}

// ToggleAdmin flips admin status for any non-creator participant. Toggling
// the creator is a no-op: the creator is permanently an admin.
func (m *Membership) ToggleAdmin(ctx context.Context, groupID, targetID string, actor models.Principal) error {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsAdmin(actor.ID) {
		return ErrNotAuthorized
	}
	if targetID == group.CreatedBy {
		return nil
	}
	if !group.IsParticipant(targetID) {
		return ErrNotParticipant
	}

	fields := map[string]interface{}{"adminIds": store.UnionOf(targetID)}
	if group.IsAdmin(targetID) {
		fields["adminIds"] = store.RemoveOf(targetID)
	}
	return m.store.MergeWrite(ctx, GroupPath(groupID), fields)
}

// SetVisibility switches public/private. Pending requests survive a
// private-to-public switch unresolved.
func (m *Membership) SetVisibility(ctx context.Context, groupID string, visibility models.Visibility, actor models.Principal) error {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsAdmin(actor.ID) {
		return ErrNotAuthorized
	}

	return m.store.MergeWrite(ctx, GroupPath(groupID), map[string]interface{}{
		"visibility": string(visibility),
	})
}

// DeleteGroup deletes the message log, then the group document. The two
// phases are not transactional: a failure in between leaves a group with an
// empty log, which is accepted rather than compensated.
func (m *Membership) DeleteGroup(ctx context.Context, groupID string, actor models.Principal) error {
	group, _, err := m.loadGroupDoc(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsAdmin(actor.ID) {
		return ErrNotAuthorized
	}

	messages, err := m.store.Query(ctx, MessagesCollection(groupID))
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if err := m.store.Delete(ctx, msg.Path); err != nil {
			return err
		}
	}

	if err := m.store.Delete(ctx, GroupPath(groupID)); err != nil {
		return err
	}

	cache.DropInviteCode(ctx, group.InviteCode)
	logrus.WithFields(logrus.Fields{"group": groupID, "actor": actor.ID}).Info("group deleted")
	return nil
}

// appendNotice records a system-generated membership notice in the chat's
// message log. Notice failures are logged, not propagated: the membership
// write already happened.
func (m *Membership) appendNotice(ctx context.Context, groupID string, about models.Principal, event, text string) {
	_, err := m.store.Create(ctx, MessagesCollection(groupID), map[string]interface{}{
		"senderId":   about.ID,
		"senderName": displayName(about),
		"text":       text,
		"type":       models.MessageTypeSystem,
		"event":      event,
		"sentAt":     store.ServerNow{},
	})
	if err != nil {
		logrus.WithError(err).WithField("group", groupID).Warn("failed to append system notice")
	}
}

func (m *Membership) lookupName(ctx context.Context, userID string) string {
	doc, err := m.store.Get(ctx, "users/"+userID)
	if err != nil {
		return userID
	}
	if name := doc.StringField("displayName"); name != "" {
		return name
	}
	return userID
}

// findRawRequest locates a pending request by user ID and returns the exact
// stored element, so the subsequent array-remove matches what the store holds.
func findRawRequest(doc *store.Document, userID string) (map[string]interface{}, models.JoinRequest, bool) {
	for _, raw := range doc.MapsField("joinRequests") {
		id, _ := raw["userId"].(string)
		status, _ := raw["status"].(string)
		if id == userID && status == models.JoinRequestPending {
			name, _ := raw["userName"].(string)
			email, _ := raw["userEmail"].(string)
			req := models.JoinRequest{
				UserID:      id,
				UserName:    name,
				UserEmail:   email,
				RequestedAt: store.AsTime(raw["requestedAt"]),
				Status:      status,
			}
			return raw, req, true
		}
	}
	return nil, models.JoinRequest{}, false
}

func displayName(p models.Principal) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Email != "" {
		return p.Email
	}
	return p.ID
}
