package acquire

import (
	"context"
	"strings"
	"time"
)

// challengeMarkers identify the anti-bot interstitial the target site fronts
// its listings with. Both the vendor name and its delivery host appear in the
// interstitial markup.
var challengeMarkers = []string{"captcha-delivery.com", "DataDome"}

// ChallengePresent reports whether the document content carries a challenge
// marker.
func ChallengePresent(content string) bool {
	for _, marker := range challengeMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

// ChallengeState is the state of the challenge-resolution wait.
type ChallengeState int

const (
	// ChallengePending means the interstitial is still up; keep polling.
	ChallengePending ChallengeState = iota

	// ChallengeResolved means the marker is gone: a human solved it in the
	// visible window, the site cleared it, or the page navigated away.
	ChallengeResolved

	// ChallengeTimedOut means the budget elapsed with the marker still up.
	ChallengeTimedOut
)

func (s ChallengeState) String() string {
	switch s {
	case ChallengePending:
		return "pending"
	case ChallengeResolved:
		return "resolved"
	case ChallengeTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// NextChallengeState is the pure transition function for the challenge poll
// loop, driven by elapsed time and the latest document read. Exceeding the
// budget wins over a simultaneously cleared marker. A read error counts as
// resolution: the page navigating away from the interstitial mid-read is
// itself proof the challenge is gone.
func NextChallengeState(elapsed, budget time.Duration, markerPresent bool, readErr error) ChallengeState {
	switch {
	case elapsed > budget:
		return ChallengeTimedOut
	case readErr != nil:
		return ChallengeResolved
	case markerPresent:
		return ChallengePending
	default:
		return ChallengeResolved
	}
}

// Clock abstracts the wait primitive so the poll loop can run against a
// simulated clock in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
