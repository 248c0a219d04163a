package api

import (
	"net/http"
	"testing"

	"github.com/nerrad567/classroom-core/internal/audit"
)

func TestAudit_RuleLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/v1/rules",
		`{"name":"Morning","schedule":{"type":"daily","time":"08:00"},"actions":{"multimedia":"on"}}`)
	wantStatus(t, w, http.StatusCreated)
	id := decode[struct {
		ID string `json:"id"`
	}](t, w).ID

	wantStatus(t, f.do(t, http.MethodPatch, "/api/v1/rules/"+id+"/enabled", `{"enabled":false}`), http.StatusOK)
	wantStatus(t, f.do(t, http.MethodDelete, "/api/v1/rules/"+id, ""), http.StatusNoContent)

	w = f.do(t, http.MethodGet, "/api/v1/audit?entity_type=rule&entity_id="+id, "")
	wantStatus(t, w, http.StatusOK)
	page := decode[audit.Page](t, w)

	want := []string{audit.ActionDelete, audit.ActionDisable, audit.ActionCreate}
	if len(page.Entries) != len(want) {
		t.Fatalf("entries = %+v, want %d", page.Entries, len(want))
	}
	for i, action := range want {
		e := page.Entries[i]
		if e.Action != action || e.Actor != benchUsername {
			t.Errorf("entry %d = %s by %q, want %s by %q", i, e.Action, e.Actor, action, benchUsername)
		}
	}
}

func TestAudit_ListErrors(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"ok", "?limit=10&offset=0", http.StatusOK},
		{"bad since", "?since=yesterday", http.StatusBadRequest},
		{"bad limit", "?limit=ten", http.StatusBadRequest},
		{"bad offset", "?offset=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantStatus(t, f.do(t, http.MethodGet, "/api/v1/audit"+tt.query, ""), tt.want)
		})
	}
}

func TestAudit_NotConfigured(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Audit = nil })
	wantStatus(t, f.do(t, http.MethodGet, "/api/v1/audit", ""), http.StatusServiceUnavailable)
}
