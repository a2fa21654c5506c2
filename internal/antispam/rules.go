package antispam

import "time"

const (
	TriggerFrequency        = "frequency"
	TriggerIdenticalContent = "identical_content"
	TriggerCrossChannel     = "cross_channel_identical"
	TriggerAttachmentSpam   = "attachment_spam"
)

// shortTimeout is the reduced consequence for same-channel repetition, which
// is more likely an innocent retry than automated spam.
const shortTimeout = time.Minute

// RuleMatch describes the highest-priority rule a user's window tripped.
type RuleMatch struct {
	Trigger     string
	Count       int
	SameChannel bool
	Timeout     time.Duration
}

type RuleSet struct {
	messageLimit     int
	timeoutDuration  time.Duration
	frequencyEnabled bool
}

func NewRuleSet(messageLimit int, timeoutDuration time.Duration, frequencyEnabled bool) *RuleSet {
	return &RuleSet{
		messageLimit:     messageLimit,
		timeoutDuration:  timeoutDuration,
		frequencyEnabled: frequencyEnabled,
	}
}

// Evaluate checks the rules in fixed priority order against the current
// window; the first match wins and later rules are not consulted even when
// their consequence would be harsher. The window includes the triggering
// message as its last entry.
func (r *RuleSet) Evaluate(window []TrackedMessage) *RuleMatch {
	if len(window) == 0 {
		return nil
	}
	current := window[len(window)-1]

	if r.frequencyEnabled && len(window) >= r.messageLimit {
		return &RuleMatch{
			Trigger:     TriggerFrequency,
			Count:       len(window),
			SameChannel: allSameChannel(window, current.ChannelID),
			Timeout:     r.timeoutDuration,
		}
	}

	if match := r.identicalRecent(window, current); match != nil {
		return match
	}
	if match := r.crossChannelIdentical(window, current); match != nil {
		return match
	}
	return r.attachmentSpam(window, current)
}

// identicalRecent looks only at the last 3 messages: 3 identical non-empty
// bodies trip it, with the short consequence when they all landed in one
// channel.
func (r *RuleSet) identicalRecent(window []TrackedMessage, current TrackedMessage) *RuleMatch {
	if current.Content == "" || len(window) < 3 {
		return nil
	}
	recent := window[len(window)-3:]

	identical := 0
	sameChannel := true
	for _, msg := range recent {
		if msg.Content != current.Content {
			continue
		}
		identical++
		if msg.ChannelID != current.ChannelID {
			sameChannel = false
		}
	}
	if identical < 3 {
		return nil
	}

	timeout := r.timeoutDuration
	if sameChannel {
		timeout = shortTimeout
	}
	return &RuleMatch{
		Trigger:     TriggerIdenticalContent,
		Count:       identical,
		SameChannel: sameChannel,
		Timeout:     timeout,
	}
}

// crossChannelIdentical catches identical content spread thin enough to slip
// past the last-3 lookback: 3+ channels, 4+ messages, 3+ identical bodies.
func (r *RuleSet) crossChannelIdentical(window []TrackedMessage, current TrackedMessage) *RuleMatch {
	if current.Content == "" || len(window) < 4 {
		return nil
	}

	channels := make(map[string]struct{})
	identical := 0
	for _, msg := range window {
		channels[msg.ChannelID] = struct{}{}
		if msg.Content == current.Content {
			identical++
		}
	}
	if len(channels) < 3 || identical < 3 {
		return nil
	}
	return &RuleMatch{
		Trigger: TriggerCrossChannel,
		Count:   identical,
		Timeout: r.timeoutDuration,
	}
}

func (r *RuleSet) attachmentSpam(window []TrackedMessage, current TrackedMessage) *RuleMatch {
	count := 0
	sameChannel := true
	for _, msg := range window {
		if msg.Attachments == 0 {
			continue
		}
		count++
		if msg.ChannelID != current.ChannelID {
			sameChannel = false
		}
	}
	if count < 4 {
		return nil
	}

	timeout := r.timeoutDuration
	if sameChannel {
		timeout = shortTimeout
	}
	return &RuleMatch{
		Trigger:     TriggerAttachmentSpam,
		Count:       count,
		SameChannel: sameChannel,
		Timeout:     timeout,
	}
}

func allSameChannel(window []TrackedMessage, channelID string) bool {
	for _, msg := range window {
		if msg.ChannelID != channelID {
			return false
		}
	}
	return true
}
