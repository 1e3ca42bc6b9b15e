package services

import (
	"testing"
)

func TestNewRegistry(t *testing.T) {
	var _ Registry = (*serviceRegistry)(nil)
}

func TestRegistryAccessors(t *testing.T) {
	// Create registry with nil services - just testing the wiring
	reg := NewRegistry(Options{})

	if reg.Tenants() != nil {
		t.Error("expected nil tenant registry")
	}
	if reg.Credentials() != nil {
		t.Error("expected nil credential service")
	}
	if reg.Vault() != nil {
		t.Error("expected nil vault service")
	}
	if reg.Knowledge() != nil {
		t.Error("expected nil knowledge service")
	}
	if reg.Stores() != nil {
		t.Error("expected nil store provisioner")
	}
	if reg.Watcher() != nil {
		t.Error("expected nil watcher")
	}
}
