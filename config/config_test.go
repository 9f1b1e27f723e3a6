package config

import (
	"testing"
	"time"
)

func TestParseValid(t *testing.T) {
	data := []byte(`
serverUrl: https://sync.example.com
fileId: file-1
groupId: group-1
nodeId: 0123456789abcdef
sqlitePath: /var/lib/ledgersync/replica.sqlite
syncIntervalSeconds: 60
`)
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.ServerURL != "https://sync.example.com" {
		t.Fatalf("ServerURL = %q", c.ServerURL)
	}
	if c.SyncInterval() != 60*time.Second {
		t.Fatalf("SyncInterval() = %v, want 60s", c.SyncInterval())
	}
}

func TestSyncIntervalDefaultsWhenUnset(t *testing.T) {
	c := ClientConfig{}
	if c.SyncInterval() != defaultSyncInterval {
		t.Fatalf("SyncInterval() = %v, want default %v", c.SyncInterval(), defaultSyncInterval)
	}
}

func TestParseRejectsMissingRequiredFields(t *testing.T) {
	cases := []string{
		`fileId: f
groupId: g
sqlitePath: /tmp/x.sqlite`,
		`serverUrl: https://x
groupId: g
sqlitePath: /tmp/x.sqlite`,
		`serverUrl: https://x
fileId: f
sqlitePath: /tmp/x.sqlite`,
		`serverUrl: https://x
fileId: f
groupId: g`,
	}
	for i, yamlDoc := range cases {
		if _, err := Parse([]byte(yamlDoc)); err == nil {
			t.Fatalf("case %d: expected validation error, got nil", i)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/to/config.yaml"); err == nil {
		t.Fatalf("expected error loading a missing file")
	}
}
