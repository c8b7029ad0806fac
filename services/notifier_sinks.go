package services

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// BellPlayer rings the terminal bell.
type BellPlayer struct {
	Out io.Writer
}

func NewBellPlayer() *BellPlayer {
	return &BellPlayer{Out: os.Stdout}
}

func (b *BellPlayer) Prime() error {
	if b.Out == nil {
		return errors.New("bell has no output")
	}
	return nil
}

func (b *BellPlayer) Play() error {
	_, err := b.Out.Write([]byte{'\a'})
	return err
}

// CommandNotifier shows desktop notifications through notify-send.
type CommandNotifier struct {
	Command string
	Timeout time.Duration
}

func NewCommandNotifier() *CommandNotifier {
	return &CommandNotifier{Command: "notify-send", Timeout: 5 * time.Second}
}

// Permission is granted when the command is installed.
func (n *CommandNotifier) Permission() bool {
	_, err := exec.LookPath(n.Command)
	return err == nil
}

func (n *CommandNotifier) Notify(title, body string) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()
	return exec.CommandContext(ctx, n.Command, title, body).Run()
}

// CommandSpeaker speaks through an external TTS command such as espeak-ng.
// Only one utterance runs at a time.
type CommandSpeaker struct {
	Command string
	Args    []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewCommandSpeaker(command string, args ...string) *CommandSpeaker {
	if command == "" {
		command = "espeak-ng"
	}
	return &CommandSpeaker{Command: command, Args: args}
}

// Cancel kills the utterance in flight, if any.
func (s *CommandSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd = nil
}

// Speak starts the command and returns without waiting for it to finish.
func (s *CommandSpeaker) Speak(text string) error {
	args := append(append([]string(nil), s.Args...), text)
	cmd := exec.Command(s.Command, args...)
	if err := cmd.Start(); err != nil {
		return err
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go func() {
		cmd.Wait()
		s.mu.Lock()
		if s.cmd == cmd {
			s.cmd = nil
		}
		s.mu.Unlock()
	}()
	return nil
}
