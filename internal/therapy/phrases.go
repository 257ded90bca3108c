package therapy

import (
	"fmt"
	"time"
)

// Phrasebook renders announcements into spoken text.
type Phrasebook interface {
	Line(a Announcement) string
	DangerWarning() string
	VoiceToggled(enabled bool) string
	Summary(total time.Duration) string
}

// PhrasebookFor returns the phrasebook for a language code.
func PhrasebookFor(lang string) (Phrasebook, error) {
	switch lang {
	case "", "ko":
		return korean{}, nil
	case "en":
		return english{}, nil
	default:
		return nil, fmt.Errorf("unsupported voice language: %s", lang)
	}
}

type korean struct{}

func (korean) Line(a Announcement) string {
	switch a.Kind {
	case AnnounceTherapyStart:
		return "역경사중력이완요법 준비가 되셨네요! 우선 수평으로 진입해 1분 이상 심폐안정 취하세요!"
	case AnnounceHorizontalReached:
		return "수평입니다. 1분 이상 복식호흡이나 명상으로 심신을 안정시킨 후 마이너스 1도에서 15도 사이로 진입해 이완요법을 시작하세요."
	case AnnounceLevel:
		return "수평입니다"
	case AnnounceNegative:
		return fmt.Sprintf("마이너스 %d도입니다", -a.Degrees)
	default:
		return fmt.Sprintf("%d도입니다", a.Degrees)
	}
}

func (korean) DangerWarning() string {
	return "혈압 상승, 기구에서 이탈 등 위험하니 더 내려가지 않도록 주의하세요!"
}

func (korean) VoiceToggled(enabled bool) string {
	if enabled {
		return "음성 안내가 켜졌습니다"
	}
	return "음성 안내가 꺼졌습니다"
}

func (korean) Summary(total time.Duration) string {
	m, s := minutesSeconds(total)
	var span string
	switch {
	case m > 0 && s > 0:
		span = fmt.Sprintf("%d분 %d초", m, s)
	case m > 0:
		span = fmt.Sprintf("%d분", m)
	case s > 0:
		span = fmt.Sprintf("%d초", s)
	default:
		return "종료합니다"
	}
	return span + "간의 이완요법 준비단계 종료되었으니 이제 깊은 이완 숙면 단계로 들어가세요!!"
}

type english struct{}

func (english) Line(a Announcement) string {
	switch a.Kind {
	case AnnounceTherapyStart:
		return "You are ready for inversion relaxation. First come to horizontal and rest for at least one minute."
	case AnnounceHorizontalReached:
		return "Horizontal. Calm yourself with deep breathing or meditation for at least one minute, then lower to between minus 1 and minus 15 degrees to begin."
	case AnnounceLevel:
		return "Horizontal"
	case AnnounceNegative:
		return fmt.Sprintf("Minus %d degrees", -a.Degrees)
	default:
		return fmt.Sprintf("%d degrees", a.Degrees)
	}
}

func (english) DangerWarning() string {
	return "Careful, going lower raises blood pressure and risks slipping off the table. Do not go further down."
}

func (english) VoiceToggled(enabled bool) string {
	if enabled {
		return "Voice guidance on"
	}
	return "Voice guidance off"
}

func (english) Summary(total time.Duration) string {
	m, s := minutesSeconds(total)
	var span string
	switch {
	case m > 0 && s > 0:
		span = plural(m, "minute") + " " + plural(s, "second")
	case m > 0:
		span = plural(m, "minute")
	case s > 0:
		span = plural(s, "second")
	default:
		return "Finished"
	}
	return span + " of relaxation preparation complete. Now move on to deep relaxation and sleep."
}

// minutesSeconds splits d into whole minutes and seconds, dropping any
// fraction of a second.
func minutesSeconds(d time.Duration) (int, int) {
	if d <= 0 {
		return 0, 0
	}
	secs := int(d / time.Second)
	return secs / 60, secs % 60
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
