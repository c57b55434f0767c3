package eventbus

import "fmt"

// Subjects centralizes the event-bus subject names published by the
// Social Graph, Moderation Engine, and Stream Core so every publisher
// and subscriber agrees on naming without string literals scattered
// across packages.
type Subjects struct{}

var Subject = Subjects{}

func (Subjects) UserFollowed(userID int64) string   { return fmt.Sprintf("social.user.%d.followed", userID) }
func (Subjects) UserUnfollowed(userID int64) string { return fmt.Sprintf("social.user.%d.unfollowed", userID) }
func (Subjects) TrackLiked(trackID int64) string    { return fmt.Sprintf("social.track.%d.liked", trackID) }
func (Subjects) TrackUnliked(trackID int64) string  { return fmt.Sprintf("social.track.%d.unliked", trackID) }
func (Subjects) TrackReposted(trackID int64) string { return fmt.Sprintf("social.track.%d.reposted", trackID) }
func (Subjects) TrackCommented(trackID int64) string {
	return fmt.Sprintf("social.track.%d.commented", trackID)
}

func (Subjects) ModerationSanction() string { return "moderation.sanction.applied" }
func (Subjects) ModerationViolation() string { return "moderation.violation.detected" }

func (Subjects) StreamLifecycle(streamID string) string {
	return fmt.Sprintf("stream.%s.lifecycle", streamID)
}
func (Subjects) StreamListenerJoined(streamID string) string {
	return fmt.Sprintf("stream.%s.listener.joined", streamID)
}
func (Subjects) StreamListenerLeft(streamID string) string {
	return fmt.Sprintf("stream.%s.listener.left", streamID)
}

func (Subjects) ChatBroadcast() string { return "chat.broadcast" }

func (Subjects) AttackDetected() string { return "ratelimit.attack.detected" }

func (Subjects) DiscoveryFeedbackRecorded(userID int64) string {
	return fmt.Sprintf("discovery.user.%d.feedback", userID)
}
func (Subjects) DiscoveryChartsRecomputed() string { return "discovery.charts.recomputed" }
func (Subjects) DiscoveryRadioRefilled(stationID string) string {
	return fmt.Sprintf("discovery.radio.%s.refilled", stationID)
}

func (Subjects) AnalyticsPlaySessionEnded() string { return "analytics.play_session.ended" }
func (Subjects) AnalyticsABAssigned(testID string) string {
	return fmt.Sprintf("analytics.ab_test.%s.assigned", testID)
}
