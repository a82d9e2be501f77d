package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_RunsInPostedOrder(t *testing.T) {
	d := New(8)
	defer d.Close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		d.Post(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for jobs to run")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestDispatcher_CloseDrainsQueuedJobs(t *testing.T) {
	d := New(8)

	ran := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		d.Post(func() { ran <- i })
	}
	d.Close()

	close(ran)
	var got []int
	for v := range ran {
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestDispatcher_PostAfterCloseDoesNotBlock(t *testing.T) {
	d := New(1)
	d.Close()

	done := make(chan struct{})
	go func() {
		d.Post(func() {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Post after Close blocked")
	}
}
