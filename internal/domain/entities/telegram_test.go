package entities

import "testing"

func TestIsStartCommand(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{text: "/start", want: true},
		{text: "  /start  ", want: true},
		{text: "/start deeplink", want: true},
		{text: "/start@arachnid_bot", want: true},
		{text: "/started", want: false},
		{text: "start", want: false},
		{text: "nick#1234", want: false},
		{text: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := (InboundMessage{Text: tt.text}).IsStartCommand(); got != tt.want {
				t.Errorf("IsStartCommand(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTelegramUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user TelegramUser
		want string
	}{
		{name: "username", user: TelegramUser{Username: "seven", FirstName: "Sev"}, want: "@seven"},
		{name: "full name", user: TelegramUser{FirstName: "Sev", LastName: "En"}, want: "Sev En"},
		{name: "first name only", user: TelegramUser{FirstName: "Sev"}, want: "Sev"},
		{name: "nothing", user: TelegramUser{}, want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}
