package permission

import (
	"errors"
	"testing"
)

func TestHasPermissionTable(t *testing.T) {
	cases := []struct {
		actor, required Role
		want            bool
	}{
		{Admin, ReadOnly, true},
		{Admin, Admin, true},
		{Agent, FormManager, true},
		{Agent, Agent, true},
		{Agent, OrganizationAdmin, false},
		{ReadOnly, Agent, false},
		{OrganizationAdmin, Admin, false},
		{FormManager, ReadOnly, true},
		{"ghost", ReadOnly, false},
		{Admin, "ghost", false},
	}
	for _, tc := range cases {
		if got := HasPermission(tc.actor, tc.required); got != tc.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tc.actor, tc.required, got, tc.want)
		}
	}
}

func TestHasPermissionIsTransitive(t *testing.T) {
	for _, a := range Roles() {
		for _, b := range Roles() {
			for _, c := range Roles() {
				if HasPermission(a, b) && HasPermission(b, c) && !HasPermission(a, c) {
					t.Fatalf("not transitive: %s >= %s >= %s", a, b, c)
				}
			}
		}
	}
}

func TestCheckPermission(t *testing.T) {
	if err := CheckPermission(Agent, FormManager); err != nil {
		t.Fatalf("expected allowed, got %v", err)
	}
	if err := CheckPermission(ReadOnly, Agent); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := CheckPermission("ghost", Agent); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}

func TestCanAccessOrganization(t *testing.T) {
	cases := []struct {
		role           Role
		principal, tgt string
		want           bool
	}{
		{Admin, "org-1", "org-2", true},
		{Admin, "", "org-2", true},
		{OrganizationAdmin, "org-1", "org-1", true},
		{OrganizationAdmin, "org-1", "org-2", false},
		{Agent, "org-1", "org-1", true},
		{Agent, "", "", false},
		{ReadOnly, "org-1", "org-2", false},
		{"ghost", "org-1", "org-1", false},
	}
	for _, tc := range cases {
		if got := CanAccessOrganization(tc.role, tc.principal, tc.tgt); got != tc.want {
			t.Errorf("CanAccessOrganization(%s, %q, %q) = %v, want %v", tc.role, tc.principal, tc.tgt, got, tc.want)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("  Organization_Admin ")
	if err != nil || r != OrganizationAdmin {
		t.Fatalf("ParseRole = %q, %v", r, err)
	}
	if _, err := ParseRole("superuser"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if Rank(Admin) != 5 || Rank(ReadOnly) != 1 || Rank("x") != 0 {
		t.Fatal("unexpected ranks")
	}
}
