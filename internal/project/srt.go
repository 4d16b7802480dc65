package project

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MaxSegmentsPerProject caps how many cues one import accepts.
const MaxSegmentsPerProject = 100

// ParseSRT reads an SRT file and converts its cues into segments. Speaker
// labels are taken from a leading "SPEAKER_XX:" prefix when present. Cues
// beyond MaxSegmentsPerProject are rejected.
func ParseSRT(path string) ([]*Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return parseSRTContent(string(data))
}

func parseSRTContent(content string) ([]*Segment, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty subtitle file")
	}

	blocks := strings.Split(content, "\n\n")
	segments := make([]*Segment, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		seg, err := parseSRTBlock(block)
		if err != nil {
			return nil, err
		}
		if seg == nil {
			continue
		}
		if len(segments) >= MaxSegmentsPerProject {
			return nil, fmt.Errorf("subtitle file exceeds %d cues", MaxSegmentsPerProject)
		}
		seg.Index = len(segments) + 1
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no usable cues in subtitle file")
	}
	return segments, nil
}

func parseSRTBlock(block string) (*Segment, error) {
	lines := strings.Split(block, "\n")
	timingLine := -1
	for i, line := range lines {
		if strings.Contains(line, "-->") {
			timingLine = i
			break
		}
	}
	if timingLine == -1 {
		// Index-only stray block, skip it.
		return nil, nil
	}
	parts := strings.Split(lines[timingLine], "-->")
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed timing line %q", lines[timingLine])
	}
	startMS, err := ParseTimestamp(parts[0])
	if err != nil {
		return nil, err
	}
	endMS, err := ParseTimestamp(parts[1])
	if err != nil {
		return nil, err
	}
	if endMS <= startMS {
		return nil, fmt.Errorf("cue must end after it starts: %q", lines[timingLine])
	}

	text := strings.TrimSpace(strings.Join(lines[timingLine+1:], " "))
	if text == "" {
		return nil, nil
	}
	speaker, text := splitSpeaker(text)

	return &Segment{
		ID:      uuid.NewString(),
		StartMS: startMS,
		EndMS:   endMS,
		Speaker: speaker,
		Text:    text,
		Emotion: EmotionAuto,
		Speed:   1.0,
		Status:  StatusPending,
	}, nil
}

func splitSpeaker(text string) (string, string) {
	if !strings.HasPrefix(text, "SPEAKER_") {
		return "", text
	}
	idx := strings.Index(text, ":")
	if idx <= 0 {
		return "", text
	}
	label := strings.TrimSpace(text[:idx])
	rest := strings.TrimSpace(text[idx+1:])
	if rest == "" {
		return "", text
	}
	return label, rest
}

// ParseTimestamp parses an SRT timestamp (HH:MM:SS,mmm) into milliseconds.
// A period separator is tolerated.
func ParseTimestamp(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	return int64(hours)*3600000 + int64(minutes)*60000 + int64(seconds)*1000 + int64(millis), nil
}
