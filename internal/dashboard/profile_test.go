package dashboard

import (
	"testing"
	"time"

	"github.com/wardenhq/warden/internal/users"
)

func TestProfileCompletion(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		account users.UserWithRoles
		want    int
	}{
		{
			name:    "credential only",
			account: users.UserWithRoles{},
			want:    25,
		},
		{
			name:    "name and email",
			account: users.UserWithRoles{User: users.User{Name: "Jane", Email: "jane@example.com"}},
			want:    75,
		},
		{
			name: "fully complete",
			account: users.UserWithRoles{User: users.User{
				Name:            "Jane",
				Email:           "jane@example.com",
				EmailVerifiedAt: &now,
			}},
			want: 100,
		},
		{
			name:    "verified but nameless",
			account: users.UserWithRoles{User: users.User{Email: "jane@example.com", EmailVerifiedAt: &now}},
			want:    75,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := profileCompletion(tc.account); got != tc.want {
				t.Fatalf("expected %d%%, got %d%%", tc.want, got)
			}
		})
	}
}
