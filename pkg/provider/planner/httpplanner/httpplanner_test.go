package httpplanner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TylorChan/Vocabulary-Builder-App/pkg/memory"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/provider/planner/httpplanner"
	"github.com/TylorChan/Vocabulary-Builder-App/pkg/review"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/roleplay/plan" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, k := range []string{"dueWords", "memory", "semanticHints"} {
			if _, ok := body[k]; !ok {
				t.Errorf("request missing %q", k)
			}
		}
		if string(body["semanticHints"]) != "[]" {
			t.Errorf("semanticHints = %s, want []", body["semanticHints"])
		}
		_, _ = w.Write([]byte(`{"mode":"role-play","scenes":[{"sceneId":"s1","title":"Late shift","roles":["barista","customer"],"targetWordIds":["w1"],"targetWords":["exhausted"]}]}`))
	}))
	t.Cleanup(srv.Close)

	p := httpplanner.New(srv.URL)
	plan, err := p.Plan(context.Background(), planner.Request{
		DueWords: []review.VocabularyItem{{ID: "w1", Text: "exhausted"}},
		Memory:   memory.DefaultProfile(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Scenes) != 1 || plan.Scenes[0].Title != "Late shift" || len(plan.Scenes[0].Roles) != 2 {
		t.Errorf("plan = %+v", plan)
	}
}

func TestPlan_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	_, err := httpplanner.New(srv.URL).Plan(context.Background(), planner.Request{})
	if err == nil || !strings.HasPrefix(err.Error(), "roleplay plan failed: 503 model overloaded") {
		t.Errorf("err = %v", err)
	}
}
