package hub

import (
	"errors"
	"log"

	"github.com/classcast/livehub/internal/auth"
	"github.com/classcast/livehub/internal/metrics"
	"github.com/classcast/livehub/internal/protocol"
	"github.com/classcast/livehub/internal/registry"
	"github.com/classcast/livehub/internal/store"
)

// Authenticate verifies the in-band bearer token and binds the identity to
// the channel. On success the user's registry entry is installed (evicting a
// stale same-path channel if one exists), the client receives the
// authenticated confirmation plus the online users of the complementary
// role, and every open channel hears the online status broadcast.
func (h *Hub) Authenticate(c Channel, msg interface{}) {
	m, ok := msg.(protocol.AuthenticateMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}

	identity, err := h.verifier.Verify(m.Token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			_ = c.WriteMessage(protocol.NewErrorMessage(replyExpiredToken))
		} else {
			_ = c.WriteMessage(protocol.NewErrorMessage(replyInvalidToken))
		}
		return
	}

	c.SetIdentity(identity.UserID, string(identity.Role), identity.Name)

	evicted := h.registry.Install(identity.UserID, registry.Entry{
		Channel: c,
		Path:    c.ChannelPath(),
		Role:    identity.Role,
	})
	if evicted != nil {
		_ = evicted.WriteMessage(protocol.NewInfoMessage(replySessionReplaced))
		_ = evicted.Close()
		log.Printf("hub: takeover user=%s path=%s", identity.UserID, c.ChannelPath())
	}

	sendEvent(c, protocol.EventAuthenticated, protocol.AuthenticatedData{
		UserID: identity.UserID,
		Role:   string(identity.Role),
	})

	h.sendActiveComplement(c, identity.Role)

	status, err := protocol.NewEventMessage(protocol.EventUserStatus, protocol.UserStatusData{
		UserID:   identity.UserID,
		IsOnline: true,
	})
	if err == nil {
		h.conns.Broadcast(status)
	}

	if h.presence != nil {
		ctx, cancel := storeCtx()
		if err := h.presence.Set(ctx, identity.UserID, c.ChannelPath(), string(identity.Role)); err != nil {
			log.Printf("hub: presence set user=%s: %v", identity.UserID, err)
		}
		cancel()
	}

	metrics.AuthenticatedUsers.Set(float64(h.registry.Count()))

	log.Printf("hub: authenticated user=%s role=%s path=%s", identity.UserID, identity.Role, c.ChannelPath())
}

// sendActiveComplement sends the profiles of every online user holding the
// role opposite the newly authenticated one: viewers get the active hosts,
// hosts get the active viewers.
func (h *Hub) sendActiveComplement(c Channel, role auth.Role) {
	complement := role.Complement()

	ids := h.registry.UserIDsByRole(complement)

	ctx, cancel := storeCtx()
	defer cancel()
	users, err := h.store.UsersByIDs(ctx, ids)
	if err != nil {
		log.Printf("hub: load active %s profiles: %v", complement, err)
		return
	}
	if users == nil {
		users = []store.User{}
	}

	event := protocol.EventActiveViewers
	if complement == auth.RoleHost {
		event = protocol.EventActiveHosts
	}
	sendEvent(c, event, users)
}
