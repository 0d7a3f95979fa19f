package hub

import (
	"github.com/classcast/livehub/internal/metrics"
	"github.com/classcast/livehub/internal/protocol"
)

// Signal relays a WebRTC payload (offer, answer, or ICE candidate) to every
// other member of the live room. The payload is never inspected; the hub
// only tags it with the sender and fans it out. Senders outside the room's
// member set are rejected, which keeps signaling inside sessions the user
// actually joined.
func (h *Hub) Signal(c Channel, msg interface{}) {
	m, ok := msg.(protocol.SignalMsg)
	if !ok {
		_ = c.WriteMessage(protocol.NewErrorMessage("Invalid JSON"))
		return
	}
	userID := c.UserID()

	if !h.rooms.Has(m.RoomID, userID) {
		_ = c.WriteMessage(protocol.NewErrorMessage(replyNotInLive))
		return
	}

	data := protocol.SignalData{
		FromUserID: userID,
		RoomID:     m.RoomID,
		Offer:      m.Offer,
		Answer:     m.Answer,
		Candidate:  m.Candidate,
	}

	for _, member := range h.rooms.Members(m.RoomID) {
		if member == userID {
			continue
		}
		h.sendToUser(member, m.Event, data)
	}

	metrics.MessagesTotal.WithLabelValues("signal").Inc()
}
