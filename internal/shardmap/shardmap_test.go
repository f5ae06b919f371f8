package shardmap

import (
	"fmt"
	"sync"
	"testing"
)

func TestGetSetUnset(t *testing.T) {
	m := New[string, int]()
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected absence sentinel for unset key")
	}
	m.Set("a", 1)
	v, ok := m.Get("a")
	if !ok || v != 1 {
		t.Fatalf("got %v, %v", v, ok)
	}
	m.Set("a", 2)
	v, _ = m.Get("a")
	if v != 2 {
		t.Fatalf("overwrite failed, got %v", v)
	}
	m.Unset("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("expected absence after Unset")
	}
}

func TestConcurrentDisjointWriters(t *testing.T) {
	m := New[string, int]()
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(fmt.Sprintf("key-%d", i), i)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, ok := m.Get(fmt.Sprintf("key-%d", i))
		if !ok || v != i {
			t.Errorf("key-%d: got %v, %v", i, v, ok)
		}
	}
}

func TestConcurrentReadersDuringWrite(t *testing.T) {
	m := New[string, int]()
	m.Set("k", 0)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	seen := make(chan int, 1000)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 1000; i++ {
			m.Set("k", i)
		}
		close(stop)
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					if v, ok := m.Get("k"); ok {
						seen <- v
					}
				}
			}
		}()
	}
	wg.Wait()
	close(seen)
	for v := range seen {
		if v < 0 || v > 1000 {
			t.Fatalf("torn read: %d", v)
		}
	}
}
