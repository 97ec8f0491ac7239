//go:build nocgo
// +build nocgo

package player

import (
	"errors"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/internal/readaloud"
)

// Stub implementations for static analysis and builds without CGO.

// QueuePlayer stub for nocgo builds.
type QueuePlayer struct{}

// New reports that audio output is unavailable.
func New(_ *log.Logger) (*QueuePlayer, error) {
	return nil, errors.New("audio not available in nocgo build")
}

func (p *QueuePlayer) SetListener(readaloud.PlayerListener) {}

func (p *QueuePlayer) Enqueue(readaloud.QueueItem) error {
	return errors.New("audio not available in nocgo build")
}

func (p *QueuePlayer) Clear() {}

func (p *QueuePlayer) Finish() {}

func (p *QueuePlayer) Play() error {
	return errors.New("audio not available in nocgo build")
}

func (p *QueuePlayer) Pause() {}

func (p *QueuePlayer) Resume() {}

func (p *QueuePlayer) SetSpeed(float64) {}

func (p *QueuePlayer) CurrentIndex() int { return 0 }

func (p *QueuePlayer) State() readaloud.PlayerState { return readaloud.PlayerIdle }

func (p *QueuePlayer) IsPlaying() bool { return false }

func (p *QueuePlayer) Close() error { return nil }
