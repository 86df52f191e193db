// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandleInterrupts_PauseThenCancel(t *testing.T) {
	sigCh := make(chan os.Signal, 2)
	done := make(chan struct{})
	var buf bytes.Buffer
	paused := make(chan struct{})
	cancelled := make(chan struct{})

	HandleInterrupts(sigCh, done, &buf,
		func() { close(paused) },
		func() { close(cancelled) })

	sigCh <- os.Interrupt
	<-paused
	sigCh <- os.Interrupt
	<-cancelled
	close(done)

	assert.Contains(t, buf.String(), "Pausing")
	assert.Contains(t, buf.String(), "Cancelling")
}

func TestHandleInterrupts_LateSignalAfterRunFinishes(t *testing.T) {
	sigCh := make(chan os.Signal, 2)
	done := make(chan struct{})
	var buf bytes.Buffer
	paused := make(chan struct{}, 1)

	HandleInterrupts(sigCh, done, &buf,
		func() { paused <- struct{}{} },
		func() {})

	// The run has finished; a trailing interrupt must not pause or print.
	close(done)
	sigCh <- os.Interrupt

	select {
	case <-paused:
		t.Fatal("pause invoked after the run finished")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Empty(t, buf.String())
}
