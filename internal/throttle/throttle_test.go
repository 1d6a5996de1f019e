package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestKey(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		actorID string
		action  string
		want    string
	}{
		{name: "plain", actorID: "user-1", action: "task_completion.create", want: "throttle:user-1:task_completion.create"},
		{name: "trimmed", actorID: " user-1 ", action: " approve ", want: "throttle:user-1:approve"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if got := Key(testCase.actorID, testCase.action); got != testCase.want {
				test.Fatalf("expected %q, got %q", testCase.want, got)
			}
		})
	}
}

func TestDisabledGuardAllowsEverything(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		guard *Guard
	}{
		{name: "nil guard", guard: nil},
		{name: "nil client", guard: New(nil, time.Minute)},
		{name: "zero window", guard: New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), 0)},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if testCase.guard.Enabled() {
				test.Fatalf("expected a disabled guard")
			}
			for attempt := 0; attempt < 2; attempt++ {
				allowed, err := testCase.guard.Allow(context.Background(), "user-1", "submit")
				if err != nil || !allowed {
					test.Fatalf("expected allow, got %v %v", allowed, err)
				}
			}
			if err := testCase.guard.Release(context.Background(), "user-1", "submit"); err != nil {
				test.Fatalf("release: %v", err)
			}
		})
	}
}

func TestUnreachableRedisFailsOpen(test *testing.T) {
	test.Parallel()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	test.Cleanup(func() { _ = client.Close() })
	guard := New(client, time.Minute)
	allowed, err := guard.Allow(context.Background(), "user-1", "submit")
	if err == nil {
		test.Fatalf("expected a redis error")
	}
	if !allowed {
		test.Fatalf("redis failures must not block submissions")
	}
}
