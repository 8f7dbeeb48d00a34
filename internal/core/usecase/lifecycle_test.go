package usecase

import (
	"testing"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
)

func TestStateRegistryForwardOnly(t *testing.T) {
	registry := NewStateRegistry()
	registry.Begin("doc", domain.DocumentState{Status: domain.StatusUploading})

	if !registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessing, Progress: 10}) {
		t.Fatal("uploading -> processing must be accepted")
	}
	if registry.Put("doc", domain.DocumentState{Status: domain.StatusUploading}) {
		t.Fatal("processing -> uploading must be rejected")
	}
	if !registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessed, Progress: 100}) {
		t.Fatal("processing -> processed must be accepted")
	}
}

func TestStateRegistryTerminalIsImmutable(t *testing.T) {
	registry := NewStateRegistry()
	registry.Begin("doc", domain.DocumentState{Status: domain.StatusUploading})
	registry.Put("doc", domain.DocumentState{Status: domain.StatusError, Message: "boom"})

	if registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessing}) {
		t.Fatal("terminal state must not accept further transitions")
	}
	if registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessed, Progress: 100}) {
		t.Fatal("terminal state must not accept further transitions")
	}

	state, ok := registry.Get("doc")
	if !ok || state.Status != domain.StatusError || state.Message != "boom" {
		t.Fatalf("terminal snapshot changed: %+v", state)
	}
}

func TestStateRegistryProgressNeverRegresses(t *testing.T) {
	registry := NewStateRegistry()
	registry.Begin("doc", domain.DocumentState{Status: domain.StatusUploading})
	registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessing, Progress: 60})

	if registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessing, Progress: 30}) {
		t.Fatal("progress must not move backwards within a status")
	}
	state, _ := registry.Get("doc")
	if state.Progress != 60 {
		t.Fatalf("expected progress to stay at 60, got %d", state.Progress)
	}
}

func TestStateRegistryBeginStartsNewAttempt(t *testing.T) {
	registry := NewStateRegistry()
	registry.Begin("doc", domain.DocumentState{Status: domain.StatusUploading})
	registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessed, Progress: 100})

	registry.Begin("doc", domain.DocumentState{Status: domain.StatusUploading})
	state, ok := registry.Get("doc")
	if !ok || state.Status != domain.StatusUploading {
		t.Fatalf("new attempt must reset the snapshot, got %+v", state)
	}
	if !registry.Put("doc", domain.DocumentState{Status: domain.StatusProcessing}) {
		t.Fatal("new attempt must accept transitions again")
	}
}
