package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner shows that a step is running. It writes nothing when out is not a
// terminal, so scheduled runs keep clean logs.
type Spinner struct {
	out      io.Writer
	chars    []string
	delay    time.Duration
	mu       sync.Mutex
	suffix   string
	started  time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
	active   bool
}

// NewSpinner creates a spinner writing to out. A nil out disables it.
func NewSpinner(out io.Writer, suffix string) *Spinner {
	return &Spinner{
		out:    out,
		chars:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		delay:  100 * time.Millisecond,
		suffix: suffix,
	}
}

// SetSuffix changes the text next to the spinner.
func (s *Spinner) SetSuffix(suffix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suffix = suffix
}

// Start starts the spinner in a background goroutine.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active || s.out == nil {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.started = time.Now()
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.delay)
		defer ticker.Stop()
		for i := 0; ; i = (i + 1) % len(s.chars) {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				elapsed := time.Since(s.started).Round(time.Second)
				fmt.Fprintf(s.out, "\r\033[K%s %s %s", StylePrimary.Render(s.chars[i]), s.suffix, StyleSubtle.Render(elapsed.String()))
				s.mu.Unlock()
			}
		}
	}()
}

// Stop stops the spinner and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	fmt.Fprint(s.out, "\r\033[K")
}
