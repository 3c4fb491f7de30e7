package types

import "testing"

func TestDMTarget(t *testing.T) {
	tests := []struct {
		channel string
		want    string
		ok      bool
	}{
		{"#dm-cosmic-penguin", "cosmic-penguin", true},
		{"#dm-a", "a", true},
		{"#general", "", false},
		{"#project-talkto", "", false},
		{"dm-no-hash", "", false},
	}
	for _, tt := range tests {
		got, ok := DMTarget(tt.channel)
		if got != tt.want || ok != tt.ok {
			t.Errorf("DMTarget(%q) = (%q, %v), want (%q, %v)", tt.channel, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDMChannelNameRoundTrip(t *testing.T) {
	name := DMChannelName("turbo-flamingo")
	if name != "#dm-turbo-flamingo" {
		t.Fatalf("unexpected DM channel name: %q", name)
	}
	target, ok := DMTarget(name)
	if !ok || target != "turbo-flamingo" {
		t.Errorf("round trip failed: got (%q, %v)", target, ok)
	}
}
