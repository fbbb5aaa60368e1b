package session

import (
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/channel"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/subscription"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/unread"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// route handles one inbound envelope. Counters are touched once per event
// here; each open list on the topic then merges the event on its own.
func (s *Session) route(env channel.Envelope) {
	log := s.logger.WithFields(logging.Fields{
		"topic": env.Topic,
		"kind":  env.Kind,
	})

	if env.Topic == subscription.PresenceTopic {
		p, err := env.DecodePresence()
		if err != nil {
			s.metrics.EnvelopeReceived("malformed")
			log.WithError(err).Warn("Dropping malformed presence envelope")
			return
		}
		s.metrics.EnvelopeReceived("ok")
		s.Presence.Observe(p.UserID, p.Online, p.At)
		return
	}

	ev, err := env.Decode()
	if err != nil {
		s.metrics.EnvelopeReceived("malformed")
		log.WithError(err).Warn("Dropping malformed envelope")
		return
	}
	s.metrics.EnvelopeReceived("ok")

	prefix, id := subscription.SplitTopic(env.Topic)
	deliveryID := env.EventID
	if deliveryID == "" {
		deliveryID = string(ev.Kind) + ":" + ev.ID
	}

	switch prefix {
	case subscription.NotificationPrefix:
		if id != s.UserID() {
			log.Debug("Ignoring notification for another user")
			return
		}
		if ev.Kind == model.EventInsert {
			s.Unread.IncrementEvent(unread.Notifications, deliveryID)
		}
	case subscription.ConversationPrefix:
		if ev.Kind == model.EventInsert && ev.AuthorID() != s.UserID() {
			s.Unread.IncrementEvent(unread.Messages, deliveryID)
		}
	case subscription.CommunityPrefix:
		switch ev.Kind {
		case model.EventInsert:
			s.Unread.IncrementEvent(unread.CommunityPending(id), deliveryID)
		case model.EventRemove:
			s.Unread.DecrementEvent(unread.CommunityPending(id), deliveryID)
		}
	case subscription.CommentPrefix:
	default:
		log.Debug("Envelope on unknown topic")
		return
	}

	for _, l := range s.openLists() {
		if l.watches(env.Topic) {
			l.handle(ev)
		}
	}
}
