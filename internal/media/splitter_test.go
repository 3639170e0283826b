package media

import (
	"math"
	"testing"

	"github.com/timmy/vidqa/internal/pipeline"
)

const sampleShowinfo = `[Parsed_showinfo_1 @ 0x5590] n:   0 pts:  77077 pts_time:2.56923 duration:   3003
[Parsed_showinfo_1 @ 0x5590] color_ranges:
[Parsed_showinfo_1 @ 0x5590] n:   1 pts: 231231 pts_time:7.7077 duration:   3003
frame=  240 fps= 58 q=-0.0 size=N/A time=00:00:09.97 bitrate=N/A speed=2.41x
`

func TestParseShowinfoTimes(t *testing.T) {
	got := parseShowinfoTimes(sampleShowinfo)
	want := []float64{2.56923, 7.7077}
	if len(got) != len(want) {
		t.Fatalf("expected %d cut points, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("cut %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestParseShowinfoTimes_NoMatches(t *testing.T) {
	if got := parseShowinfoTimes("frame=1 fps=0"); len(got) != 0 {
		t.Errorf("expected no cut points, got %v", got)
	}
}

func TestScenesFromCuts(t *testing.T) {
	tests := []struct {
		name     string
		cuts     []float64
		duration float64
		want     []pipeline.Scene
	}{
		{
			name:     "no cuts yields single full scene",
			cuts:     nil,
			duration: 10,
			want:     []pipeline.Scene{{Start: 0, End: 10}},
		},
		{
			name:     "cuts split into contiguous scenes",
			cuts:     []float64{2.5, 7.7},
			duration: 10,
			want: []pipeline.Scene{
				{Start: 0, End: 2.5},
				{Start: 2.5, End: 7.7},
				{Start: 7.7, End: 10},
			},
		},
		{
			name:     "cut too close to previous boundary is dropped",
			cuts:     []float64{2.0, 2.2},
			duration: 10,
			want: []pipeline.Scene{
				{Start: 0, End: 2.0},
				{Start: 2.0, End: 10},
			},
		},
		{
			name:     "cut at or past the end is dropped",
			cuts:     []float64{5.0, 10.0, 12.0},
			duration: 10,
			want: []pipeline.Scene{
				{Start: 0, End: 5.0},
				{Start: 5.0, End: 10},
			},
		},
		{
			name:     "non-positive duration yields nothing",
			cuts:     []float64{1.0},
			duration: 0,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scenesFromCuts(tt.cuts, tt.duration)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d scenes, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if math.Abs(got[i].Start-tt.want[i].Start) > 1e-9 || math.Abs(got[i].End-tt.want[i].End) > 1e-9 {
					t.Errorf("scene %d: got %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLastLine(t *testing.T) {
	if got := lastLine("first\nsecond\nthird\n"); got != "third" {
		t.Errorf("lastLine = %q, want %q", got, "third")
	}
	if got := lastLine("only"); got != "only" {
		t.Errorf("lastLine = %q, want %q", got, "only")
	}
}
