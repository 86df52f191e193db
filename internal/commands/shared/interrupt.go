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
	"fmt"
	"io"
	"os"
)

// HandleInterrupts runs the two-stage interrupt protocol for a blocking
// run: the first signal pauses the execution at its next step boundary, the
// second cancels it. The spawned goroutine exits as soon as done closes, so
// a signal arriving after the run has finished neither prints nor touches
// the orchestrator. Callers close done once the run returns.
func HandleInterrupts(sigCh <-chan os.Signal, done <-chan struct{}, errOut io.Writer, pause, cancel func()) {
	go func() {
		if !awaitSignal(sigCh, done) {
			return
		}
		fmt.Fprintln(errOut, "\nPausing at the next step boundary (interrupt again to cancel)")
		pause()

		if !awaitSignal(sigCh, done) {
			return
		}
		fmt.Fprintln(errOut, "\nCancelling")
		cancel()
	}()
}

// awaitSignal blocks until a signal arrives or done closes. A signal that
// races an already-closed done loses: the select may pick either ready
// case, so the done recheck keeps a late interrupt from acting.
func awaitSignal(sigCh <-chan os.Signal, done <-chan struct{}) bool {
	select {
	case <-sigCh:
		select {
		case <-done:
			return false
		default:
			return true
		}
	case <-done:
		return false
	}
}
