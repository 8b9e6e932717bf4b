package hierarchy

import (
	"context"
	"errors"
	"testing"

	"iot-engine/internal/models"
)

func fixture() *Static {
	return NewStatic(
		models.Site{ID: "s3", BrandID: "b2", HoldingID: "h1", Region: "south"},
		models.Site{ID: "s1", BrandID: "b1", HoldingID: "h1", Region: "north"},
		models.Site{ID: "s2", BrandID: "b1", HoldingID: "h1", Region: "south"},
		models.Site{ID: "s4", BrandID: "b3", HoldingID: "h2", Region: "north"},
	)
}

func ids(sites []models.Site) []string {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		out = append(out, s.ID)
	}
	return out
}

func TestResolveSites(t *testing.T) {
	r := fixture()
	ctx := context.Background()
	cases := []struct {
		scope models.Scope
		want  []string
	}{
		{models.Scope{Kind: models.ScopeAll}, []string{"s1", "s2", "s3", "s4"}},
		{models.Scope{Kind: models.ScopeBrand, ID: "b1"}, []string{"s1", "s2"}},
		{models.Scope{Kind: models.ScopeHolding, ID: "h1"}, []string{"s1", "s2", "s3"}},
		{models.Scope{Kind: models.ScopeHolding, ID: "h1", Region: "south"}, []string{"s2", "s3"}},
		{models.Scope{Kind: models.ScopeBrand, ID: "nobody"}, []string{}},
	}
	for _, tc := range cases {
		sites, err := r.ResolveSites(ctx, tc.scope)
		if err != nil {
			t.Fatalf("%+v: unexpected error: %v", tc.scope, err)
		}
		got := ids(sites)
		if len(got) != len(tc.want) {
			t.Fatalf("%+v: expected %v, got %v", tc.scope, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%+v: expected %v, got %v", tc.scope, tc.want, got)
			}
		}
	}
}

func TestResolveSitesRejectsInvalidScope(t *testing.T) {
	r := fixture()
	for _, scope := range []models.Scope{{Kind: models.ScopeBrand}, {Kind: "planet", ID: "x"}} {
		if _, err := r.ResolveSites(context.Background(), scope); !errors.Is(err, ErrInvalidScope) {
			t.Fatalf("%+v: expected ErrInvalidScope, got %v", scope, err)
		}
	}
}

func TestGetSite(t *testing.T) {
	r := fixture()
	site, err := r.GetSite(context.Background(), "s2")
	if err != nil || site.BrandID != "b1" {
		t.Fatalf("unexpected site %+v, err %v", site, err)
	}
	if _, err := r.GetSite(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	r.Upsert(models.Site{ID: "missing"})
	if _, err := r.GetSite(context.Background(), "missing"); err != nil {
		t.Fatalf("expected upserted site, got %v", err)
	}
}

func TestDiscoverRegistersUnknownSitesOnce(t *testing.T) {
	r := fixture()
	if r.Discover("s1") {
		t.Fatal("known site must not be rediscovered")
	}
	if !r.Discover("s9") || r.Discover("s9") || r.Discover("") {
		t.Fatal("expected s9 to be discovered exactly once")
	}
	site, err := r.GetSite(context.Background(), "s9")
	if err != nil || !site.Modules.Energy || !site.Modules.Air || !site.Modules.Water {
		t.Fatalf("unexpected discovered site %+v, err %v", site, err)
	}
	all, _ := r.ResolveSites(context.Background(), models.Scope{Kind: models.ScopeAll})
	if len(all) != 5 || all[len(all)-1].ID != "s9" {
		t.Fatalf("expected 5 sites ending with s9, got %+v", all)
	}
}
