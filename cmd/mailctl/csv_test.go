package main

import (
	"strings"
	"testing"
)

func TestReadRecipients(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantEmail []string
		wantName  []string
		wantErr   bool
	}{
		{
			name:      "no header",
			input:     "a@example.com,Alice\nb@example.com\n",
			wantEmail: []string{"a@example.com", "b@example.com"},
			wantName:  []string{"Alice", ""},
		},
		{
			name:      "header with reordered columns",
			input:     "name,Email\nAlice,a@example.com\nBob,b@example.com\n",
			wantEmail: []string{"a@example.com", "b@example.com"},
			wantName:  []string{"Alice", "Bob"},
		},
		{
			name:      "email only header",
			input:     "email\na@example.com\n",
			wantEmail: []string{"a@example.com"},
			wantName:  []string{""},
		},
		{
			name:      "blank emails skipped",
			input:     "a@example.com,Alice\n,Nobody\n  b@example.com , Bob \n",
			wantEmail: []string{"a@example.com", "b@example.com"},
			wantName:  []string{"Alice", "Bob"},
		},
		{
			name:    "header without email column",
			input:   "first,last\nA,B\n",
			wantErr: true,
		},
		{
			name:    "unterminated quote",
			input:   "\"a@example.com,Alice\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readRecipients(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readRecipients() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.wantEmail) {
				t.Fatalf("got %d recipients, want %d: %+v", len(got), len(tt.wantEmail), got)
			}
			for i, r := range got {
				if r.Email != tt.wantEmail[i] || r.Name != tt.wantName[i] {
					t.Errorf("recipient %d = %+v, want %s/%s", i, r, tt.wantEmail[i], tt.wantName[i])
				}
			}
		})
	}
}
