package protocol

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl    MessageType = "client_control"
	TypeClientCapability MessageType = "client_capability"
	TypeClientVoices     MessageType = "client_voices"
	TypeRecognitionEvent MessageType = "recognition_event"
	TypeAudioEvent       MessageType = "audio_event"

	TypeStatus           MessageType = "status"
	TypeVoiceMode        MessageType = "voice_mode"
	TypeUserMessage      MessageType = "user_message"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeVoiceError       MessageType = "voice_error"
	TypeToneChanged      MessageType = "tone_changed"
	TypeAssistantAudio   MessageType = "assistant_audio"
	TypeAudioStop        MessageType = "audio_stop"
	TypeRecognitionStart MessageType = "recognition_start"
	TypeRecognitionStop  MessageType = "recognition_stop"
	TypeOverview         MessageType = "overview"
	TypeCategory         MessageType = "category"
	TypeThreadCleared    MessageType = "thread_cleared"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions carried by client_control.
const (
	ActionVoiceToggle = "voice_toggle"
	ActionVoiceEnter  = "voice_enter"
	ActionVoiceExit   = "voice_exit"
	ActionListen      = "listen"
	ActionStop        = "stop"
	ActionTone        = "tone"
	ActionText        = "text"
	ActionCategory    = "category"
	ActionClear       = "clear"
)

// Recognition and audio event names reported by the browser.
const (
	RecognitionStarted = "start"
	RecognitionResult  = "result"
	RecognitionError   = "error"
	RecognitionEnded   = "end"

	AudioCanPlay = "canplay"
	AudioPlay    = "play"
	AudioEnded   = "ended"
	AudioError   = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Tone      string      `json:"tone,omitempty"`
	Text      string      `json:"text,omitempty"`
	Category  string      `json:"category,omitempty"`
}

type ClientCapability struct {
	Type                 MessageType `json:"type"`
	SessionID            string      `json:"session_id"`
	RecognitionSupported bool        `json:"recognition_supported"`
	AudioSupported       bool        `json:"audio_supported"`
}

// SystemVoice is one entry of the browser's speech synthesis catalog.
type SystemVoice struct {
	Name  string `json:"name"`
	Lang  string `json:"lang"`
	Local bool   `json:"local"`
}

type ClientVoices struct {
	Type      MessageType   `json:"type"`
	SessionID string        `json:"session_id"`
	Voices    []SystemVoice `json:"voices"`
}

type RecognitionEvent struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	AttemptID  string      `json:"attempt_id"`
	Event      string      `json:"event"`
	Transcript string      `json:"transcript,omitempty"`
	Code       string      `json:"code,omitempty"`
	Message    string      `json:"message,omitempty"`
}

type AudioEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	ClipID    string      `json:"clip_id"`
	Event     string      `json:"event"`
	Detail    string      `json:"detail,omitempty"`
}

type Status struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	Text      string      `json:"text"`
}

type VoiceMode struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Active    bool        `json:"active"`
}

type UserMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	MessageID string      `json:"message_id"`
	Text      string      `json:"text"`
	Voice     bool        `json:"voice"`
}

type Resource struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Address  string  `json:"address,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Score    float64 `json:"score"`
}

type AssistantMessage struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	MessageID      string      `json:"message_id"`
	Text           string      `json:"text"`
	ResourcesFound int         `json:"resources_found"`
	Resources      []Resource  `json:"resources,omitempty"`
	Voice          bool        `json:"voice"`
}

type VoiceError struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Message   string      `json:"message"`
}

type ToneChanged struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Tone        string      `json:"tone"`
	Description string      `json:"description"`
	VoiceID     string      `json:"voice_id"`
}

type AssistantAudio struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	ClipID      string      `json:"clip_id"`
	MIME        string      `json:"mime"`
	AudioBase64 string      `json:"audio_base64"`
}

type AudioStop struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	ClipID    string      `json:"clip_id"`
}

type RecognitionStart struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	AttemptID string      `json:"attempt_id"`
	Language  string      `json:"language"`
}

type RecognitionStop struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	AttemptID string      `json:"attempt_id"`
}

type Overview struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Payload   any         `json:"payload"`
}

type CategoryChanged struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Category  string      `json:"category"`
}

type ThreadCleared struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// Encode serializes a server message for the websocket.
func Encode(msg any) ([]byte, error) {
	return sonic.Marshal(msg)
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || !validAction(msg.Action) {
			return nil, errors.New("invalid client_control")
		}
		return msg, nil
	case TypeClientCapability:
		var msg ClientCapability
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_capability")
		}
		return msg, nil
	case TypeClientVoices:
		var msg ClientVoices
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_voices")
		}
		return msg, nil
	case TypeRecognitionEvent:
		var msg RecognitionEvent
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Event {
		case RecognitionStarted, RecognitionResult, RecognitionError, RecognitionEnded:
		default:
			return nil, errors.New("invalid recognition_event")
		}
		if msg.SessionID == "" || msg.AttemptID == "" {
			return nil, errors.New("invalid recognition_event")
		}
		return msg, nil
	case TypeAudioEvent:
		var msg AudioEvent
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		switch msg.Event {
		case AudioCanPlay, AudioPlay, AudioEnded, AudioError:
		default:
			return nil, errors.New("invalid audio_event")
		}
		if msg.SessionID == "" || msg.ClipID == "" {
			return nil, errors.New("invalid audio_event")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func validAction(action string) bool {
	switch action {
	case ActionVoiceToggle, ActionVoiceEnter, ActionVoiceExit, ActionListen, ActionStop,
		ActionTone, ActionText, ActionCategory, ActionClear:
		return true
	default:
		return false
	}
}
