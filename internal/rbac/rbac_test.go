package rbac

import "testing"

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(RoleAdmin) {
		t.Error("admin role should be admin")
	}
	if IsAdmin(RoleMember) {
		t.Error("member role should not be admin")
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"member", true},
		{"owner", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.role); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.role, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Error("admin should normalize to admin")
	}
	if Normalize("bogus") != RoleMember {
		t.Error("unknown role should normalize to member")
	}
}
