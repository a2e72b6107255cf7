package voice

import "strings"

// SystemVoice is an on-device speech synthesis voice.
type SystemVoice struct {
	Name  string `json:"name"`
	Lang  string `json:"lang"`
	Local bool   `json:"local"`
}

// SelectVoice picks the best on-device voice for a tone. The first rule that
// matches wins:
//
//  1. a remote voice whose name contains a preferred fragment, in preference order
//  2. any voice whose name contains a preferred fragment
//  3. the first remote English voice
//  4. the first English voice
//  5. the first voice
func SelectVoice(tone ToneProfile, voices []SystemVoice) (SystemVoice, bool) {
	if len(voices) == 0 {
		return SystemVoice{}, false
	}

	for _, remoteOnly := range []bool{true, false} {
		for _, pref := range tone.PreferredVoices {
			if pref == "" {
				continue
			}
			for _, v := range voices {
				if remoteOnly && v.Local {
					continue
				}
				if strings.Contains(v.Name, pref) {
					return v, true
				}
			}
		}
	}

	for _, remoteOnly := range []bool{true, false} {
		for _, v := range voices {
			if remoteOnly && v.Local {
				continue
			}
			if strings.HasPrefix(strings.ToLower(v.Lang), "en") {
				return v, true
			}
		}
	}

	return voices[0], true
}
