package playback

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDownsampleIdentityUnderBudget(t *testing.T) {
	in := []int{1, 2, 3, 4, 5}
	got := Downsample(in, 5)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("downsample changed input under budget (-want +got):\n%s", diff)
	}

	got = Downsample(in, 100)
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("downsample changed short input (-want +got):\n%s", diff)
	}
}

func TestDownsampleEmpty(t *testing.T) {
	got := Downsample([]int{}, 5)
	if len(got) != 0 {
		t.Errorf("expected empty output, got %v", got)
	}
}

// Eleven samples at t=0,10,...,100 with a budget of 5 stride at
// ceil(11/5)=3: indices 0,3,6,9 plus the forced last index 10.
func TestDownsampleStrideScenario(t *testing.T) {
	in := make([]int, 11)
	for i := range in {
		in[i] = i * 10
	}

	got := Downsample(in, 5)
	want := []int{0, 30, 60, 90, 100}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected stride output (-want +got):\n%s", diff)
	}
}

func TestDownsampleBoundAndTail(t *testing.T) {
	tests := []struct {
		name      string
		length    int
		maxPoints int
	}{
		{"just over budget", 6, 5},
		{"double budget", 10, 5},
		{"large series", 24001, 8000},
		{"budget one", 17, 1},
		{"prime length", 101, 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := make([]int, tc.length)
			for i := range in {
				in[i] = i
			}

			got := Downsample(in, tc.maxPoints)
			if len(got) > tc.maxPoints+1 {
				t.Errorf("output length %d exceeds maxPoints+1 = %d", len(got), tc.maxPoints+1)
			}
			if got[len(got)-1] != in[len(in)-1] {
				t.Errorf("last output %d is not last input %d", got[len(got)-1], in[len(in)-1])
			}
			for i := 1; i < len(got); i++ {
				if got[i] <= got[i-1] {
					t.Errorf("output not strictly increasing at %d: %v", i, got)
				}
			}
		})
	}
}

func TestDownsampleIdempotentWithinBudget(t *testing.T) {
	in := make([]int, 11)
	for i := range in {
		in[i] = i
	}

	once := Downsample(in, 5)
	twice := Downsample(once, 5)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("downsample not idempotent (-once +twice):\n%s", diff)
	}
}
