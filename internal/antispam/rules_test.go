package antispam

import (
	"fmt"
	"testing"
	"time"
)

const fullTimeout = 7 * 24 * time.Hour

func testRules() *RuleSet {
	return NewRuleSet(5, fullTimeout, true)
}

func burst(channelID string, contents ...string) []TrackedMessage {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := make([]TrackedMessage, 0, len(contents))
	for i, content := range contents {
		window = append(window, TrackedMessage{
			Content:   content,
			ChannelID: channelID,
			Timestamp: base.Add(time.Duration(i) * 500 * time.Millisecond),
		})
	}
	return window
}

func TestFrequencyRule(t *testing.T) {
	window := burst("general", "m1", "m2", "m3", "m4", "m5")

	match := testRules().Evaluate(window)
	if match == nil || match.Trigger != TriggerFrequency {
		t.Fatalf("expected frequency match, got %+v", match)
	}
	if match.Count != 5 {
		t.Fatalf("expected count 5, got %d", match.Count)
	}
	if match.Timeout != fullTimeout {
		t.Fatalf("expected long consequence, got %v", match.Timeout)
	}
}

func TestFrequencyWinsOverIdentical(t *testing.T) {
	// Five identical messages satisfy both frequency and identical-content;
	// frequency must fire because it is checked first.
	window := burst("general", "spam", "spam", "spam", "spam", "spam")

	match := testRules().Evaluate(window)
	if match == nil || match.Trigger != TriggerFrequency {
		t.Fatalf("expected frequency to win, got %+v", match)
	}
}

func TestFrequencyDisabledFallsThrough(t *testing.T) {
	rules := NewRuleSet(5, fullTimeout, false)
	window := burst("general", "spam", "spam", "spam", "spam", "spam")

	match := rules.Evaluate(window)
	if match == nil || match.Trigger != TriggerIdenticalContent {
		t.Fatalf("expected identical-content with frequency disabled, got %+v", match)
	}
}

func TestIdenticalSameChannelShortConsequence(t *testing.T) {
	window := burst("general", "hello", "hello", "hello")

	match := testRules().Evaluate(window)
	if match == nil || match.Trigger != TriggerIdenticalContent {
		t.Fatalf("expected identical-content match, got %+v", match)
	}
	if !match.SameChannel {
		t.Fatal("expected same-channel match")
	}
	if match.Timeout != shortTimeout {
		t.Fatalf("expected short consequence, got %v", match.Timeout)
	}
}

func TestIdenticalCrossChannelFullConsequence(t *testing.T) {
	window := burst("general", "buy-now", "buy-now", "buy-now")
	window[0].ChannelID = "random"

	match := testRules().Evaluate(window)
	if match == nil || match.Trigger != TriggerIdenticalContent {
		t.Fatalf("expected identical-content match, got %+v", match)
	}
	if match.SameChannel {
		t.Fatal("expected cross-channel match")
	}
	if match.Timeout != fullTimeout {
		t.Fatalf("expected long consequence, got %v", match.Timeout)
	}
}

func TestEmptyContentNeverIdentical(t *testing.T) {
	window := burst("general", "", "", "")

	if match := testRules().Evaluate(window); match != nil {
		t.Fatalf("empty bodies must not match identical-content, got %+v", match)
	}
}

func TestCrossChannelIdentical(t *testing.T) {
	// The last three are not all identical, so only the whole-window rule
	// can catch this spread.
	window := burst("a", "buy-now", "other", "buy-now", "buy-now")
	window[1].ChannelID = "b"
	window[2].ChannelID = "c"

	match := testRules().Evaluate(window)
	if match == nil || match.Trigger != TriggerCrossChannel {
		t.Fatalf("expected cross-channel match, got %+v", match)
	}
	if match.Count != 3 {
		t.Fatalf("expected 3 identical bodies, got %d", match.Count)
	}
	if match.Timeout != fullTimeout {
		t.Fatalf("expected long consequence, got %v", match.Timeout)
	}
}

func TestCrossChannelRequiresThreeChannels(t *testing.T) {
	window := burst("a", "buy-now", "other", "buy-now", "buy-now")
	window[1].ChannelID = "b"

	if match := testRules().Evaluate(window); match != nil {
		t.Fatalf("two channels must not trip cross-channel, got %+v", match)
	}
}

func TestAttachmentSpamSameChannel(t *testing.T) {
	window := burst("media", "f1", "f2", "f3", "f4")
	for i := range window {
		window[i].Attachments = 1
	}

	match := testRules().Evaluate(window)
	if match == nil || match.Trigger != TriggerAttachmentSpam {
		t.Fatalf("expected attachment-spam match, got %+v", match)
	}
	if !match.SameChannel {
		t.Fatal("expected same-channel match")
	}
	if match.Timeout != shortTimeout {
		t.Fatalf("expected short consequence, got %v", match.Timeout)
	}
}

func TestAttachmentSpamCrossChannel(t *testing.T) {
	window := burst("media", "f1", "f2", "f3", "f4")
	for i := range window {
		window[i].Attachments = 1
		window[i].ChannelID = fmt.Sprintf("c%d", i%2)
	}
	window[len(window)-1].ChannelID = "c1"

	match := testRules().Evaluate(window)
	if match == nil || match.Trigger != TriggerAttachmentSpam {
		t.Fatalf("expected attachment-spam match, got %+v", match)
	}
	if match.SameChannel {
		t.Fatal("expected cross-channel match")
	}
	if match.Timeout != fullTimeout {
		t.Fatalf("expected long consequence, got %v", match.Timeout)
	}
}

func TestBelowThresholdsNoMatch(t *testing.T) {
	window := burst("general", "m1", "m2", "m3", "m4")

	if match := testRules().Evaluate(window); match != nil {
		t.Fatalf("expected no match below thresholds, got %+v", match)
	}
}

func TestEmptyWindowNoMatch(t *testing.T) {
	if match := testRules().Evaluate(nil); match != nil {
		t.Fatalf("expected no match for empty window, got %+v", match)
	}
}
