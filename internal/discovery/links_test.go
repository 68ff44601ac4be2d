package discovery

import (
	"reflect"
	"testing"
)

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "no links",
			text: "plain announcement without anything useful",
			want: nil,
		},
		{
			name: "single public link",
			text: "join us at https://t.me/golang_jobs today",
			want: []string{"https://t.me/golang_jobs"},
		},
		{
			name: "multiple links keep order",
			text: "first https://t.me/alpha then https://t.me/+AbCdEf and http://t.me/joinchat/XYZ789",
			want: []string{"https://t.me/alpha", "https://t.me/+AbCdEf", "http://t.me/joinchat/XYZ789"},
		},
		{
			name: "link glued to punctuation is taken as-is",
			text: "see https://t.me/chan,now",
			want: []string{"https://t.me/chan,now"},
		},
		{
			name: "non-telegram urls ignored",
			text: "https://example.com/t.me/fake and https://telegram.org/x",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractLinks(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractLinks(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseInviteCode(t *testing.T) {
	tests := []struct {
		name     string
		link     string
		wantCode string
		wantOK   bool
	}{
		{"joinchat form", "https://t.me/joinchat/XYZ789", "XYZ789", true},
		{"plus form", "https://t.me/+AbCdEf123", "AbCdEf123", true},
		{"bare plus code", "+AbCdEf123", "AbCdEf123", true},
		{"query string stripped", "https://t.me/+AbCdEf?start=1", "AbCdEf", true},
		{"public username is not an invite", "https://t.me/golang_jobs", "", false},
		{"at-username is not an invite", "@golang_jobs", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := ParseInviteCode(tt.link)
			if ok != tt.wantOK || code != tt.wantCode {
				t.Errorf("ParseInviteCode(%q) = (%q, %v), want (%q, %v)",
					tt.link, code, ok, tt.wantCode, tt.wantOK)
			}
		})
	}
}

func TestParseUsername(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"plain username", "golang_jobs", "golang_jobs"},
		{"at prefix", "@golang_jobs", "golang_jobs"},
		{"full https link", "https://t.me/golang_jobs", "golang_jobs"},
		{"http link", "http://t.me/golang_jobs", "golang_jobs"},
		{"trailing path dropped", "https://t.me/golang_jobs/123", "golang_jobs"},
		{"query dropped", "https://t.me/golang_jobs?start=ref", "golang_jobs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseUsername(tt.ref); got != tt.want {
				t.Errorf("ParseUsername(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}
