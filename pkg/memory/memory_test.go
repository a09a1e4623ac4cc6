package memory

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestProfileFromBuckets(t *testing.T) {
	t.Parallel()

	t.Run("empty uses defaults", func(t *testing.T) {
		t.Parallel()
		p, err := ProfileFromBuckets(nil)
		if err != nil {
			t.Fatal(err)
		}
		if p.Semantic.Level != "B1" || p.Semantic.Style != "short" {
			t.Errorf("semantic = %+v", p.Semantic)
		}
		if p.Episodic.DifficultWords == nil || p.Procedural.Rules == nil {
			t.Error("default lists must be non-nil so they encode as []")
		}
	})

	t.Run("stored bucket overrides", func(t *testing.T) {
		t.Parallel()
		p, err := ProfileFromBuckets(map[string]json.RawMessage{
			BucketSemantic:   json.RawMessage(`{"interests":["cooking"],"level":"C1","style":"playful"}`),
			BucketEpisodic:   json.RawMessage(`null`),
			BucketProcedural: json.RawMessage(`{"rules":["no Chinese"]}`),
		})
		if err != nil {
			t.Fatal(err)
		}
		if p.Semantic.Level != "C1" || len(p.Semantic.Interests) != 1 {
			t.Errorf("semantic = %+v", p.Semantic)
		}
		if len(p.Procedural.Rules) != 1 {
			t.Errorf("procedural = %+v", p.Procedural)
		}
		if p.Episodic.LastScenes == nil {
			t.Error("null episodic bucket did not keep defaults")
		}
	})

	t.Run("malformed bucket", func(t *testing.T) {
		t.Parallel()
		_, err := ProfileFromBuckets(map[string]json.RawMessage{BucketEpisodic: json.RawMessage(`[1,2]`)})
		if err == nil {
			t.Error("expected error")
		}
	})
}

func TestEpisodic_AddEpisode(t *testing.T) {
	t.Parallel()

	e := DefaultProfile().Episodic
	e.DifficultWords = []string{"w9", "w1"}

	e.AddEpisode(Episode{At: time.Unix(1, 0), DifficultWords: []string{"w1", "w2"}}, []string{"Coffee shop"})
	want := []string{"w1", "w2", "w9"}
	if fmt.Sprint(e.DifficultWords) != fmt.Sprint(want) {
		t.Errorf("DifficultWords = %v, want %v", e.DifficultWords, want)
	}
	if len(e.LastScenes) != 1 || e.LastScenes[0] != "Coffee shop" {
		t.Errorf("LastScenes = %v", e.LastScenes)
	}

	for i := range MaxEpisodes + 3 {
		e.AddEpisode(Episode{At: time.Unix(int64(i+2), 0)}, nil)
	}
	if len(e.Sessions) != MaxEpisodes {
		t.Fatalf("len(Sessions) = %d, want %d", len(e.Sessions), MaxEpisodes)
	}
	if got := e.Sessions[len(e.Sessions)-1].At; !got.Equal(time.Unix(MaxEpisodes+4, 0)) {
		t.Errorf("newest episode at %v", got)
	}
}

func TestValidBucket(t *testing.T) {
	t.Parallel()
	for _, b := range Buckets {
		if !ValidBucket(b) {
			t.Errorf("ValidBucket(%q) = false", b)
		}
	}
	if ValidBucket("shortTerm") {
		t.Error("ValidBucket(shortTerm) = true")
	}
}
