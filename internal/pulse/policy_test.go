package pulse

import "testing"

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		wasOnline bool
		probeOK   bool
		want      Decision
	}{
		{
			name:      "stays online",
			wasOnline: true,
			probeOK:   true,
			want:      Decision{NewOnline: true},
		},
		{
			name:      "goes offline fires alert",
			wasOnline: true,
			probeOK:   false,
			want:      Decision{NewOnline: false, EmitAlert: true},
		},
		{
			name:      "recovers triggers deep poll",
			wasOnline: false,
			probeOK:   true,
			want:      Decision{NewOnline: true, TriggerDeepPoll: true},
		},
		{
			name:      "stays offline stays quiet",
			wasOnline: false,
			probeOK:   false,
			want:      Decision{NewOnline: false},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.wasOnline, tc.probeOK)
			if got != tc.want {
				t.Errorf("Decide(%v, %v) = %+v, want %+v", tc.wasOnline, tc.probeOK, got, tc.want)
			}
		})
	}
}
