package subscription

import "strings"

// PresenceTopic is joined for the whole authenticated session
const PresenceTopic = "presence"

// Topic prefixes
const (
	CommentPrefix      = "comment:"
	ConversationPrefix = "conversation:"
	NotificationPrefix = "notification:"
	CommunityPrefix    = "community:"
)

// CommentTopic carries new comments of a tweet
func CommentTopic(tweetID string) string { return CommentPrefix + tweetID }

// ConversationTopic carries message delivery for a conversation
func ConversationTopic(conversationID string) string { return ConversationPrefix + conversationID }

// NotificationTopic carries a user's notifications
func NotificationTopic(userID string) string { return NotificationPrefix + userID }

// CommunityTopic carries pending-approval changes of a community
func CommunityTopic(communityID string) string { return CommunityPrefix + communityID }

// SplitTopic returns a topic's prefix and id. The presence topic has no id.
func SplitTopic(topic string) (prefix, id string) {
	i := strings.IndexByte(topic, ':')
	if i < 0 {
		return topic, ""
	}
	return topic[:i+1], topic[i+1:]
}
