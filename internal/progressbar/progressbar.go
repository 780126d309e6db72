// Package progressbar wraps cheggaaa/pb/v3 the way the teacher's
// progress.go did, plus a staged multi-step reporter for the build driver.
package progressbar

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// Bar is a thin rename of pb.ProgressBar so callers in this module don't
// import cheggaaa/pb/v3 directly.
type Bar = pb.ProgressBar

// New starts a byte-count progress bar, mirroring dump.go's pb.Start64 use.
func New(total int64) *Bar {
	return pb.Full.Start64(total)
}

// ProxyReader wraps an io.Reader, reporting bytes read into a bar.
func ProxyReader(bar *Bar, r io.Reader) io.Reader {
	return bar.NewProxyReader(r)
}

// Stage is one labeled step of a multi-step build operation.
type Stage struct {
	Messages  chan<- string
	Progress  chan<- float64
	Completed *sync.WaitGroup
}

// NewStaged starts a terminal reporter supporting a fixed number of
// sequential stages, each with 0..1 fractional progress. Ported from the
// teacher's progress.go newProgress, generalized only to accept a stage
// count rather than hardcoding one.
func NewStaged(stages int) Stage {
	messageChannel := make(chan string)
	progressChannel := make(chan float64)
	var wait sync.WaitGroup
	wait.Add(1)

	go func() {
		defer wait.Done()
		currentMessage := ""
		currentProgress := 0.0
		currentStage := 0
		stageStart := time.Now()

		print := func(withPercentage bool) {
			if withPercentage {
				fmt.Printf("\033[2K\rStep %d/%d: %s... %.3f%%", currentStage, stages, currentMessage, currentProgress)
			} else {
				fmt.Printf("\033[2K\rStep %d/%d: %s -> %s", currentStage, stages, currentMessage, time.Since(stageStart).String())
			}
		}

		for {
			select {
			case message, ok := <-messageChannel:
				if !ok {
					return
				}
				print(false)
				stageStart = time.Now()
				currentMessage = message
				currentProgress = 0
				currentStage++
				if currentStage > stages {
					fmt.Println()
					fmt.Println(message)
					return
				}
				if currentStage > 1 {
					fmt.Println()
				}
				print(true)

			case progress, ok := <-progressChannel:
				if !ok {
					return
				}
				currentProgress = progress * 100
				print(true)
			}
		}
	}()

	return Stage{Messages: messageChannel, Progress: progressChannel, Completed: &wait}
}
