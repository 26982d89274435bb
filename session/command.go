package session

import (
	"fmt"
	"strings"
)

// Command is a transport request handled by the session.
type Command int

const (
	CmdPlay Command = iota + 1
	CmdPlayFromMediaID
	CmdPause
	CmdStop
	CmdSeek
	CmdSkipNext
	CmdSkipPrev
	CmdShuffle
	CmdRepeat
)

func (c Command) String() string {
	switch c {
	case CmdPlay:
		return "play"
	case CmdPlayFromMediaID:
		return "play_from_media_id"
	case CmdPause:
		return "pause"
	case CmdStop:
		return "stop"
	case CmdSeek:
		return "seek"
	case CmdSkipNext:
		return "skip_next"
	case CmdSkipPrev:
		return "skip_prev"
	case CmdShuffle:
		return "shuffle"
	case CmdRepeat:
		return "repeat"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// RepeatMode controls what happens when the queue runs out.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "none"
	}
}

// ParseRepeatMode parses "none", "all" or "one".
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return RepeatNone, nil
	case "all":
		return RepeatAll, nil
	case "one":
		return RepeatOne, nil
	default:
		return RepeatNone, fmt.Errorf("%w: repeat mode %q", ErrInvalidArgument, s)
	}
}

// Request is one command with its arguments.
type Request struct {
	Command Command
	// MediaID is the browse id for CmdPlayFromMediaID.
	MediaID string
	// PositionMs is the target for CmdSeek.
	PositionMs int
	// Enabled switches shuffle for CmdShuffle.
	Enabled bool
	// Repeat is the mode for CmdRepeat.
	Repeat RepeatMode
}
