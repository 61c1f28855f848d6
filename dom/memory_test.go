package dom

import (
	"context"
	"fmt"
	"testing"
)

const page = `<html><head></head><body><div class="Layout-sidebar"><div class="BorderGrid-row" id="about"></div></div></body></html>`

func TestMemory_FullBufferKeepsNewestLocation(t *testing.T) {
	m, err := NewMemory("https://github.com/acme/widgets", page)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	// Nobody reads while the host navigates well past the buffer.
	last := ""
	for i := 0; i < notificationBuffer+40; i++ {
		last = fmt.Sprintf("https://github.com/acme/repo-%d", i)
		m.Navigate(last)
	}

	notes := m.Notifications()
	if got := len(notes); got != notificationBuffer {
		t.Fatalf("buffered: got %d, want %d", got, notificationBuffer)
	}
	var first, final string
	for i := 0; i < notificationBuffer; i++ {
		n := <-notes
		if i == 0 {
			first = n.Location
		}
		final = n.Location
	}
	if final != last {
		t.Errorf("last notification: got %s, want %s", final, last)
	}
	if want := "https://github.com/acme/repo-40"; first != want {
		t.Errorf("oldest kept notification: got %s, want %s", first, want)
	}
}

func TestMemory_MutationsPublishCurrentLocation(t *testing.T) {
	m, err := NewMemory("https://github.com/acme/widgets", page)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	ctx := context.Background()

	if err := m.Mount(ctx, Fragment{HostSelector: ".Layout-sidebar", HTML: `<div id="panel"></div>`}); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	n := <-m.Notifications()
	if n.Location != "https://github.com/acme/widgets" {
		t.Errorf("location: got %s", n.Location)
	}
	if ok, _ := m.HasElement(ctx, "panel"); !ok {
		t.Error("mounted fragment not found")
	}
}
