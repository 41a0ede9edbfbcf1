package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgnsrekt/ttsclient/internal/tts"
)

// ErrUnknownLanguage is returned by SetLanguage for an unknown preset.
var ErrUnknownLanguage = errors.New("unknown language preset")

var (
	english = tts.VoiceSettings{LanguageCode: "en-US", VoiceName: "en-US-Standard-A", SSMLGender: "MALE"}
	german  = tts.VoiceSettings{LanguageCode: "de-DE", VoiceName: "de-DE-Standard-A", SSMLGender: "FEMALE"}
)

// languagePresets maps preset names and their numeric aliases to voices.
var languagePresets = map[string]tts.VoiceSettings{
	"0":  english,
	"en": english,
	"1":  german,
	"de": german,
}

// LanguagePreset returns the voice for a preset name.
func LanguagePreset(name string) (tts.VoiceSettings, bool) {
	v, ok := languagePresets[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// Voice returns the voice used for the next request body.
func (r *Requester) Voice() tts.VoiceSettings {
	r.voiceMu.RLock()
	defer r.voiceMu.RUnlock()
	return r.voice
}

// SetVoice replaces the voice settings.
func (r *Requester) SetVoice(v tts.VoiceSettings) {
	r.voiceMu.Lock()
	r.voice = v
	r.voiceMu.Unlock()

	r.logger.Info("voice changed",
		"language_code", v.LanguageCode,
		"voice_name", v.VoiceName,
		"ssml_gender", v.SSMLGender,
	)
}

// SetLanguage switches to a preset voice: "0" or "en" for US English, "1" or
// "de" for German. Unknown presets leave the settings unchanged.
func (r *Requester) SetLanguage(preset string) error {
	v, ok := LanguagePreset(preset)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, preset)
	}
	r.SetVoice(v)
	return nil
}
