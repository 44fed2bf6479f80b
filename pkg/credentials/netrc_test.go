package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetrc(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []machineEntry
		wantErr string
	}{
		{
			name:    "single machine one line",
			content: "machine acme.cloud.example.com login token password tok-1\n",
			want: []machineEntry{
				{Name: "acme.cloud.example.com", Login: "token", Password: "tok-1"},
			},
		},
		{
			name: "multi-line entry",
			content: `machine acme.cloud.example.com
  login token
  password tok-1
`,
			want: []machineEntry{
				{Name: "acme.cloud.example.com", Login: "token", Password: "tok-1"},
			},
		},
		{
			name: "multiple machines and default",
			content: `machine a.example.com login u1 password p1
machine b.example.com login u2 password p2
default login u3 password p3
`,
			want: []machineEntry{
				{Name: "a.example.com", Login: "u1", Password: "p1"},
				{Name: "b.example.com", Login: "u2", Password: "p2"},
				{Login: "u3", Password: "p3", Default: true},
			},
		},
		{
			name: "comments skipped",
			content: `# workspace credentials
machine a.example.com login u password p # inline comment
`,
			want: []machineEntry{
				{Name: "a.example.com", Login: "u", Password: "p"},
			},
		},
		{
			name: "account token parsed and ignored",
			content: `machine a.example.com login u account acct password p
`,
			want: []machineEntry{
				{Name: "a.example.com", Login: "u", Password: "p"},
			},
		},
		{
			name: "macdef body skipped through blank line",
			content: `machine a.example.com login u password p
macdef init
cd /uploads
put report.csv

machine b.example.com login v password q
`,
			want: []machineEntry{
				{Name: "a.example.com", Login: "u", Password: "p"},
				{Name: "b.example.com", Login: "v", Password: "q"},
			},
		},
		{
			name:    "empty file",
			content: "",
			want:    nil,
		},
		{
			name:    "login before machine",
			content: "login u password p\n",
			wantErr: "before any machine entry",
		},
		{
			name:    "unexpected token",
			content: "machine a.example.com frobnicate\n",
			wantErr: "unexpected token",
		},
		{
			name:    "dangling key at end of file",
			content: "machine a.example.com password\n",
			wantErr: "missing its value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := parseNetrc(strings.NewReader(tt.content))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, entries)
		})
	}
}

func TestLookupMachine_CaseInsensitive(t *testing.T) {
	path := writeNetrc(t, "machine ACME.Cloud.Example.COM login token password p\n")

	entry, err := lookupMachine(path, "acme.cloud.example.com")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "p", entry.Password)
}

func TestLookupMachine_NoMatchNoDefault(t *testing.T) {
	path := writeNetrc(t, "machine a.example.com login u password p\n")

	entry, err := lookupMachine(path, "b.example.com")
	require.NoError(t, err)
	assert.Nil(t, entry)
}
