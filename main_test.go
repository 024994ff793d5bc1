package main

import (
	"testing"

	"stevedore/cmd"
)

func TestVersion(t *testing.T) {
	if version != "dev" {
		t.Errorf("Expected default version to be 'dev', got %s", version)
	}
}

func TestSetVersionIntegration(t *testing.T) {
	originalVersion := version
	defer func() { version = originalVersion }()

	for _, v := range []string{"dev", "1.0.0", "v2.0.0-rc1"} {
		version = v
		cmd.SetVersion(version)
		if cmd.GetVersion() != v {
			t.Errorf("Expected cmd version %s, got %s", v, cmd.GetVersion())
		}
	}
}
