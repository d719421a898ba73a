package modeljson

import (
	"errors"
	"testing"
)

type payload struct {
	Score    Score  `json:"score"`
	Feedback string `json:"feedback"`
}

func TestUnmarshal_DirectJSON(t *testing.T) {
	var p payload
	if err := Unmarshal(`{"score": 85, "feedback": "good"}`, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Score != 85 || p.Feedback != "good" {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestUnmarshal_FencedJSONBlock(t *testing.T) {
	raw := "Here is my evaluation:\n```json\n{\"score\": 70, \"feedback\": \"ok\"}\n```\nThanks!"
	var p payload
	if err := Unmarshal(raw, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Score != 70 {
		t.Errorf("expected score 70, got %d", p.Score)
	}
}

func TestUnmarshal_BareFence(t *testing.T) {
	raw := "```\n{\"score\": 60, \"feedback\": \"meh\"}\n```"
	var p payload
	if err := Unmarshal(raw, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Score != 60 {
		t.Errorf("expected score 60, got %d", p.Score)
	}
}

func TestUnmarshal_ProseWrappedBraceSpan(t *testing.T) {
	raw := `Sure! Based on the rubric the result is {"score": 42, "feedback": "needs work"} — let me know if you need more.`
	var p payload
	if err := Unmarshal(raw, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Score != 42 {
		t.Errorf("expected score 42, got %d", p.Score)
	}
}

func TestUnmarshal_TrailingCommaRepair(t *testing.T) {
	raw := "```json\n{\"score\": 55, \"feedback\": \"fine\",}\n```"
	var p payload
	if err := Unmarshal(raw, &p); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if p.Score != 55 {
		t.Errorf("expected score 55, got %d", p.Score)
	}
}

func TestUnmarshal_TotalFailure(t *testing.T) {
	var p payload
	err := Unmarshal("I cannot answer that in JSON, sorry.", &p)
	if err == nil {
		t.Fatal("Unmarshal should fail on prose without JSON")
	}
	if !errors.Is(err, ErrNoJSON) {
		t.Errorf("error should wrap ErrNoJSON, got %v", err)
	}

	if err := Unmarshal("", &p); !errors.Is(err, ErrNoJSON) {
		t.Errorf("empty input should yield ErrNoJSON, got %v", err)
	}
}

func TestScore_UnmarshalVariants(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"score": 85}`, 85},
		{`{"score": "85"}`, 85},
		{`{"score": 85.4}`, 85},
		{`{"score": 85.6}`, 86},
		{`{"score": -5}`, -5},
		{`{"score": null}`, 0},
	}

	for _, c := range cases {
		var p payload
		if err := Unmarshal(c.raw, &p); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", c.raw, err)
			continue
		}
		if p.Score.Int() != c.want {
			t.Errorf("Unmarshal(%s) score = %d, want %d", c.raw, p.Score, c.want)
		}
	}
}

func TestScore_RejectsNonNumeric(t *testing.T) {
	var p payload
	if err := Unmarshal(`{"score": "excellent"}`, &p); err == nil {
		t.Error("non-numeric score should fail to parse")
	}
}

func TestClampScore(t *testing.T) {
	cases := []struct{ in, want int }{
		{150, 100},
		{-5, 0},
		{0, 0},
		{100, 100},
		{85, 85},
	}
	for _, c := range cases {
		if got := ClampScore(c.in); got != c.want {
			t.Errorf("ClampScore(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}
